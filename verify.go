// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"

	"github.com/grailbio/darray/comm"
	"github.com/grailbio/darray/frame"
)

// IsSorted reports whether the rows of the array are in nondecreasing
// global order. The element type must be ordered and hold a single
// element per row.
func (a *DistributedArray) IsSorted(ctx context.Context) (bool, error) {
	const op = "darray.IsSorted"
	if a.local.RowSize() != 1 || !frame.CanCompare(a.local.ElemType()) {
		return false, newError(op, UnsupportedElementType, "rows of type %s%v are not ordered", a.dtype, a.local.Trailing())
	}
	sorted := true
	less := a.local.Ops().Less
	n := a.local.Len()
	for i := 1; i < n && sorted; i++ {
		sorted = !less(i, i-1)
	}
	prev, err := a.topology.Prev(ctx)
	if err != nil {
		return false, err
	}
	if sorted && n > 0 && !prev.IsEmpty() {
		edge := frame.Concat(a.local.ElemType(), a.local.Trailing(), prev.Frame(), a.local.Row(0))
		sorted = !edge.Ops().Less(1, 0)
	}
	return a.comm.AllreduceBool(ctx, sorted, comm.LAND)
}

// Checksum returns a hash of the multiset of elements held by the
// array. It does not depend on the order of the rows nor on their
// distribution across ranks, so it is preserved by Sort and by
// redistribution. The element type must be hashable.
func (a *DistributedArray) Checksum(ctx context.Context) (uint64, error) {
	const op = "darray.Checksum"
	hash := a.local.Ops().HashWithSeed
	if hash == nil {
		return 0, newError(op, UnsupportedElementType, "elements of type %s cannot be hashed", a.dtype)
	}
	var sum uint64
	for i, n := 0, a.local.NumElems(); i < n; i++ {
		sum += uint64(hash(i, checksumSeed))
	}
	total, err := a.comm.AllreduceInt(ctx, int64(sum), comm.Sum)
	return uint64(total), err
}

const checksumSeed = 0x5eed
