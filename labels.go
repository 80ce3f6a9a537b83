// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"

	"github.com/grailbio/darray/frame"
)

// UniqueLabels assigns a label to every row of a globally sorted
// array: rows with equal values receive equal labels, and labels
// count the distinct values from 0 in global order. Equal values
// that span rank boundaries receive the same label. The result is an
// int64 array with the same distribution as a.
func (a *DistributedArray) UniqueLabels(ctx context.Context) (*DistributedArray, error) {
	const op = "darray.UniqueLabels"
	if a.dtype.IsCompound() {
		return nil, newError(op, UnsupportedElementType, "cannot label compound elements of type %s", a.dtype)
	}
	var (
		n       = a.local.Len()
		inverse = make([]int64, n)
		nunique int64
	)
	for i := 0; i < n; i++ {
		if i == 0 || !a.local.RowEqual(i, a.local, i-1) {
			nunique++
		}
		inverse[i] = nunique - 1
	}
	next, err := a.topology.Next(ctx)
	if err != nil {
		return nil, err
	}
	// The last group continues on the next non-empty rank, which
	// counts it.
	if n > 0 && next.Equal(valueOf(a.local.Row(n-1))) {
		nunique--
	}
	offset, _, err := offsets(ctx, a.comm, int(nunique))
	if err != nil {
		return nil, err
	}
	for i := range inverse {
		inverse[i] += int64(offset)
	}
	return New(ctx, a.comm, frame.Of(inverse))
}
