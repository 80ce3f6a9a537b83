// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"
	"fmt"
	"reflect"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/darray/comm"
	"github.com/grailbio/darray/dtype"
	"github.com/grailbio/darray/frame"
)

// A DistributedArray is a striped array: a logical array whose rows
// are partitioned contiguously across the ranks of a communicator, in
// rank order. Each rank holds its rows in a local frame.
//
// Constructors and structural operations are collective: every rank
// must call them, in the same order.
type DistributedArray struct {
	comm     *comm.Comm
	local    frame.Frame
	cshape   []int
	coffset  int
	dtype    dtype.Type
	topology *Topology
}

// New returns a distributed array whose rows on this rank are those
// of local. New verifies that every rank supplied a buffer of the same
// pointer-free element type and trailing shape; if not, every rank
// returns an error of the same kind.
func New(ctx context.Context, c *comm.Comm, local frame.Frame) (*DistributedArray, error) {
	metas, err := gatherMeta(ctx, c, "darray.New", local)
	if err != nil {
		return nil, err
	}
	counts := make([]int, len(metas))
	for i, m := range metas {
		counts[i] = m.Len
	}
	offsets, total := comm.Offsets(counts)
	return &DistributedArray{
		comm:     c,
		local:    local,
		cshape:   append([]int{total}, local.Trailing()...),
		coffset:  offsets[c.Rank()],
		dtype:    metas[0].Type,
		topology: NewTopology(c, local),
	}, nil
}

// Empty returns a zero-filled distributed array of element type typ
// and global shape cshape. The rows are divided as evenly as
// possible, with the remainder going to the lowest ranks. Every
// dimension must be non-negative, and rows must hold at least one
// element.
func Empty(ctx context.Context, c *comm.Comm, typ reflect.Type, cshape ...int) (*DistributedArray, error) {
	const op = "darray.Empty"
	if len(cshape) == 0 {
		return nil, errors.E(errors.Invalid, op, "empty global shape")
	}
	for i, d := range cshape {
		switch {
		case d < 0:
			return nil, errors.E(errors.Invalid, op, fmt.Sprintf("negative dimension in global shape %v", cshape))
		case d == 0 && i > 0:
			return nil, errors.E(errors.Invalid, op, fmt.Sprintf("zero-width rows in global shape %v", cshape))
		}
	}
	counts := evenCounts(cshape[0], c.Size())
	a, err := New(ctx, c, frame.Make(typ, counts[c.Rank()], cshape[1:]...))
	if err != nil {
		return nil, err
	}
	if !intsEqual(a.cshape, cshape) {
		return nil, newError(op, ShapeMismatch, "requested global shape %v, ranks agree on %v", cshape, a.cshape)
	}
	return a, nil
}

// Comm returns the array's communicator.
func (a *DistributedArray) Comm() *comm.Comm { return a.comm }

// Local returns the rows held by this rank. The returned frame shares
// storage with the array.
func (a *DistributedArray) Local() frame.Frame { return a.local }

// CShape returns the global shape of the array: its global length
// followed by its trailing dimensions.
func (a *DistributedArray) CShape() []int { return append([]int(nil), a.cshape...) }

// COffset returns the global index of this rank's first row.
func (a *DistributedArray) COffset() int { return a.coffset }

// DType returns the array's element type.
func (a *DistributedArray) DType() dtype.Type { return a.dtype }

// Topology returns the array's topology.
func (a *DistributedArray) Topology() *Topology { return a.topology }

func (a *DistributedArray) String() string {
	return fmt.Sprintf("darray%v%s[%d:%d]", a.cshape, a.dtype, a.coffset, a.coffset+a.local.Len())
}

// Gather gathers the array into a single frame on rank root, or on
// every rank if root is comm.All.
func (a *DistributedArray) Gather(ctx context.Context, root int) (frame.Frame, error) {
	return Gather(ctx, a.comm, a.local, root)
}

// Slice returns the distributed array of global rows [i, j). Each rank
// keeps the part of its rows that falls in the range; rows do not
// move between ranks.
func (a *DistributedArray) Slice(ctx context.Context, i, j int) (*DistributedArray, error) {
	if i < 0 || j < i || j > a.cshape[0] {
		return nil, errors.E(errors.Invalid, "darray.Slice", fmt.Sprintf("invalid range [%d, %d) of %d rows", i, j, a.cshape[0]))
	}
	lo, hi := i-a.coffset, j-a.coffset
	if lo < 0 {
		lo = 0
	}
	if lo > a.local.Len() {
		lo = a.local.Len()
	}
	if hi > a.local.Len() {
		hi = a.local.Len()
	}
	if hi < lo {
		hi = lo
	}
	return New(ctx, a.comm, a.local.Slice(lo, hi))
}

// Field returns the distributed array holding the named field of a
// compound array.
func (a *DistributedArray) Field(ctx context.Context, name string) (*DistributedArray, error) {
	if _, ok := a.dtype.Field(name); !ok {
		return nil, newError("darray.Field", TypeMismatch, "element type %s has no field %q", a.dtype, name)
	}
	return New(ctx, a.comm, a.local.Field(name))
}

// offsets returns the prefix sums of n across ranks: the sum of the
// values on lower ranks, and the global total.
func offsets(ctx context.Context, c *comm.Comm, n int) (offset, total int, err error) {
	var all []int
	if err := c.Allgather(ctx, n, &all); err != nil {
		return 0, 0, err
	}
	for i, m := range all {
		if i < c.Rank() {
			offset += m
		}
		total += m
	}
	return offset, total, nil
}
