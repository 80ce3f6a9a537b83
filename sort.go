// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"
	"reflect"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/darray/dtype"
	"github.com/grailbio/darray/frame"
	"github.com/grailbio/darray/psort"
)

// Sort sorts the rows of the array globally by the named field, or by
// the elements themselves if orderby is empty. The key must be an
// unsigned integer with a single element per row. Rows with equal keys
// keep their relative order. Each rank keeps its number of rows; only
// their contents change.
func (a *DistributedArray) Sort(ctx context.Context, orderby string) error {
	const op = "darray.Sort"
	key := a.local
	if orderby != "" {
		if _, ok := a.dtype.Field(orderby); !ok {
			return newError(op, TypeMismatch, "element type %s has no field %q", a.dtype, orderby)
		}
		key = a.local.Field(orderby)
	}
	switch key.ElemType().Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
	default:
		return newError(op, UnsupportedElementType, "sort key has type %s; expected an unsigned integer", key.ElemType())
	}
	if key.RowSize() != 1 {
		return newError(op, UnsupportedElementType, "sort key has %d elements per row", key.RowSize())
	}
	keys := make([]uint64, key.Len())
	for i := range keys {
		keys[i] = key.Elem(i).Uint()
	}
	_, sorted, err := psort.Sort(ctx, a.comm, keys, a.local, a.local.Len())
	if err != nil {
		return errors.E(op, err)
	}
	frame.Copy(a.local, sorted)
	return nil
}

// A ConcatOption configures Concat.
type ConcatOption func(*concatOptions)

type concatOptions struct {
	localSize int
}

// LocalSize sets the number of rows of the concatenation held by
// this rank. By default, each rank holds as many rows as it holds
// across the inputs.
func LocalSize(n int) ConcatOption {
	return func(o *concatOptions) { o.localSize = n }
}

// Concat returns the concatenation of the provided arrays, which must
// share a communicator and trailing shape: the rows of the first array
// in global order, followed by those of the second, and so on. The
// element type of the result is the common type of the inputs'
// element types.
func Concat(ctx context.Context, arrays []*DistributedArray, opts ...ConcatOption) (*DistributedArray, error) {
	const op = "darray.Concat"
	if len(arrays) == 0 {
		return nil, errors.E(errors.Invalid, op, "no arrays")
	}
	var (
		c        = arrays[0].comm
		trailing = arrays[0].local.Trailing()
		types    = make([]reflect.Type, len(arrays))
		n        int
	)
	for i, a := range arrays {
		if a.comm != c {
			return nil, errors.E(errors.Invalid, op, "arrays do not share a communicator")
		}
		if !intsEqual(a.cshape[1:], trailing) {
			return nil, newError(op, ShapeMismatch, "array %d has trailing shape %v, array 0 has %v", i, a.cshape[1:], trailing)
		}
		types[i] = a.local.ElemType()
		n += a.local.Len()
	}
	typ, err := dtype.Common(types...)
	if err != nil {
		return nil, newError(op, TypeMismatch, "%v", err)
	}
	o := concatOptions{localSize: n}
	for _, opt := range opts {
		opt(&o)
	}
	if o.localSize < 0 {
		err = newError(op, CountMismatch, "negative local size %d", o.localSize)
	}
	if err := agree(ctx, c, op, err); err != nil {
		return nil, err
	}
	_, total, err := offsets(ctx, c, o.localSize)
	if err != nil {
		return nil, err
	}
	var global int
	for _, a := range arrays {
		global += a.cshape[0]
	}
	if total != global {
		return nil, newError(op, CountMismatch, "local sizes sum to %d, arrays hold %d rows", total, global)
	}

	var (
		keys  = make([]uint64, 0, n)
		parts = make([]frame.Frame, len(arrays))
		start int
	)
	for i, a := range arrays {
		for j := 0; j < a.local.Len(); j++ {
			keys = append(keys, uint64(start+a.coffset+j))
		}
		start += a.cshape[0]
		parts[i] = a.local.Convert(typ)
	}
	records := frame.Concat(typ, trailing, parts...)
	_, out, err := psort.Sort(ctx, c, keys, records, o.localSize)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return New(ctx, c, out)
}
