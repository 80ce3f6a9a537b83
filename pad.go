// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/grailbio/darray/comm"
	"github.com/grailbio/darray/frame"
)

// A padRequest asks a rank for count rows starting at its local row
// start.
type padRequest struct {
	Start, Count int
}

// FrontPad returns this rank's local rows preceded by the front rows
// that precede them globally, which are fetched from lower ranks. Each
// rank may request a different number of rows. If any rank requests
// more rows than precede it, every rank fails with PaddingInfeasible.
func FrontPad(ctx context.Context, c *comm.Comm, local frame.Frame, front int) (frame.Frame, error) {
	const op = "darray.FrontPad"
	metas, err := gatherMeta(ctx, c, op, local)
	if err != nil {
		return frame.Frame{}, err
	}
	var (
		rank     = c.Rank()
		requests = make([]padRequest, c.Size())
		offset   int
		total    int
	)
	for i := 0; i < rank; i++ {
		offset += metas[i].Len
	}
	var peerOffset int
	for i := 0; i < rank; i++ {
		lo, hi := max(peerOffset, offset-front), min(peerOffset+metas[i].Len, offset)
		if hi > lo {
			requests[i] = padRequest{Start: lo - peerOffset, Count: hi - lo}
			total += hi - lo
		}
		peerOffset += metas[i].Len
	}
	infeasible, err := c.AllreduceBool(ctx, front < 0 || total != front, comm.LOR)
	if err != nil {
		return frame.Frame{}, err
	}
	if infeasible {
		if front < 0 || total != front {
			return frame.Frame{}, newError(op, PaddingInfeasible, "rank %d requested %d rows; %d precede it", rank, front, offset)
		}
		return frame.Frame{}, newError(op, PaddingInfeasible, "another rank requested more rows than precede it")
	}

	var asked []padRequest
	if err := c.Alltoall(ctx, requests, &asked); err != nil {
		return frame.Frame{}, err
	}
	send := make([][]byte, c.Size())
	for i, r := range asked {
		if r.Count > 0 {
			send[i] = local.Slice(r.Start, r.Start+r.Count).Bytes()
		}
	}
	recv, err := c.Alltoallv(ctx, send)
	if err != nil {
		return frame.Frame{}, err
	}
	parts := make([]frame.Frame, 0, rank+1)
	for i := 0; i < rank; i++ {
		if requests[i].Count > 0 {
			parts = append(parts, frame.FromBytes(local.ElemType(), recv[i], local.Trailing()...))
		}
	}
	parts = append(parts, local)
	out := frame.Concat(local.ElemType(), local.Trailing(), parts...)
	log.Debug.Printf("%s: padded %d local rows with %d preceding rows", c, local.Len(), front)
	return out, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
