// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"
	"reflect"

	"github.com/grailbio/darray/frame"
)

// A BincountOption configures Bincount. Every rank must supply the
// same options, except for weights.
type BincountOption func(*bincountOptions)

type bincountOptions struct {
	weights     []float64
	local       bool
	sharedEdges bool
}

// Weights counts the provided weight for each local row instead of
// one. The weights must have one entry per local row; the counts are
// then float64 rather than int64.
func Weights(w []float64) BincountOption {
	return func(o *bincountOptions) { o.weights = w }
}

// LocalOnly returns each rank's local histogram without merging the
// bins shared with other ranks.
func LocalOnly() BincountOption {
	return func(o *bincountOptions) { o.local = true }
}

// SharedEdges determines where the merged count of a value that spans
// rank boundaries is kept. If shared is true (the default), every rank
// holding the value keeps the merged count in its edge bin. Otherwise
// only the lowest such rank keeps it; higher ranks drop their leading
// bin.
func SharedEdges(shared bool) BincountOption {
	return func(o *bincountOptions) { o.sharedEdges = shared }
}

// Bincount counts the occurrences of each value in a globally sorted
// array of non-negative integers. Each rank's histogram starts at the
// bin of its first value when that value continues the run of the
// nearest non-empty lower rank, and otherwise at the bin following
// that rank's last value (or at 0 when there is no such rank). Counts
// of values that span rank boundaries are merged across all ranks
// that hold them.
func (a *DistributedArray) Bincount(ctx context.Context, opts ...BincountOption) (*DistributedArray, error) {
	const op = "darray.Bincount"
	o := bincountOptions{sharedEdges: true}
	for _, opt := range opts {
		opt(&o)
	}
	switch a.local.ElemType().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
	default:
		return nil, newError(op, UnsupportedElementType, "cannot count elements of type %s", a.dtype)
	}
	if a.local.RowSize() != 1 {
		return nil, newError(op, UnsupportedElementType, "cannot count rows of shape %v", a.local.Trailing())
	}
	var (
		n      = a.local.Len()
		values = make([]int64, n)
		err    error
	)
	for i := range values {
		values[i] = valueOf(a.local.Row(i)).Int()
		switch {
		case values[i] < 0:
			err = newError(op, InvalidLocalInput, "negative value %d at row %d", values[i], a.coffset+i)
		case i > 0 && values[i] < values[i-1]:
			err = newError(op, InvalidLocalInput, "values are not sorted at row %d", a.coffset+i)
		}
	}
	if o.weights != nil && len(o.weights) != n {
		err = newError(op, InvalidLocalInput, "%d weights for %d rows", len(o.weights), n)
	}
	if err := agree(ctx, a.comm, op, err); err != nil {
		return nil, err
	}

	prev, err := a.topology.Prev(ctx)
	if err != nil {
		return nil, err
	}
	var offset int64
	if !prev.IsEmpty() {
		offset = prev.Int()
		if n > 0 && values[0] != offset {
			offset++
		}
	}
	err = nil
	if n > 0 && values[0] < offset {
		err = newError(op, InvalidLocalInput, "values are not sorted across ranks at row %d", a.coffset)
	}
	if err := agree(ctx, a.comm, op, err); err != nil {
		return nil, err
	}
	var counts []float64
	if n > 0 {
		counts = make([]float64, values[n-1]-offset+1)
	}
	for i, v := range values {
		w := 1.0
		if o.weights != nil {
			w = o.weights[i]
		}
		counts[v-offset] += w
	}
	if o.local {
		return New(ctx, a.comm, countsFrame(counts, o.weights != nil))
	}

	heads, err := a.topology.Heads(ctx)
	if err != nil {
		return nil, err
	}
	tails, err := a.topology.Tails(ctx)
	if err != nil {
		return nil, err
	}
	dist, err := New(ctx, a.comm, frame.Of(counts))
	if err != nil {
		return nil, err
	}
	headsN, err := dist.topology.Heads(ctx)
	if err != nil {
		return nil, err
	}
	tailsN, err := dist.topology.Tails(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		var (
			first  = valueOf(a.local.Row(0))
			last   = valueOf(a.local.Row(n - 1))
			shared bool
			merged = append([]float64(nil), counts...)
		)
		for i := a.comm.Rank() - 1; i >= 0; i-- {
			if tails[i].Equal(first) {
				merged[0] += tailsN[i].Float()
				shared = true
			}
		}
		for i := a.comm.Rank() + 1; i < a.comm.Size(); i++ {
			if heads[i].Equal(last) {
				merged[len(merged)-1] += headsN[i].Float()
			}
		}
		if shared && !o.sharedEdges {
			merged = merged[1:]
		}
		counts = merged
	}
	return New(ctx, a.comm, countsFrame(counts, o.weights != nil))
}

func countsFrame(counts []float64, weighted bool) frame.Frame {
	if weighted {
		return frame.Of(counts)
	}
	ints := make([]int64, len(counts))
	for i, c := range counts {
		ints[i] = int64(c)
	}
	return frame.Of(ints)
}
