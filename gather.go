// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"
	"fmt"
	"reflect"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/darray/comm"
	"github.com/grailbio/darray/dtype"
	"github.com/grailbio/darray/frame"
)

// A meta describes a rank's local buffer to its peers.
type meta struct {
	Valid       bool
	Len         int
	Trailing    []int
	Type        dtype.Type
	Fingerprint uint32
}

func metaOf(f frame.Frame) meta {
	if !f.IsValid() {
		return meta{}
	}
	t := f.Type()
	return meta{Valid: true, Len: f.Len(), Trailing: f.Trailing(), Type: t, Fingerprint: t.Fingerprint()}
}

// GatherMeta exchanges the descriptions of every rank's local buffer
// and verifies that they are compatible. Since every rank checks the
// same descriptions in the same order, every rank returns the same
// error.
func gatherMeta(ctx context.Context, c *comm.Comm, op string, local frame.Frame) ([]meta, error) {
	var metas []meta
	if err := c.Allgather(ctx, metaOf(local), &metas); err != nil {
		return nil, err
	}
	for i, m := range metas {
		if !m.Valid {
			return nil, newError(op, InvalidLocalInput, "rank %d supplied no local buffer", i)
		}
	}
	for i, m := range metas {
		if path, ok := m.Type.BoxedPath(); ok {
			return nil, newError(op, UnsupportedElementType, "rank %d: element type %s has boxed field %s", i, m.Type, path)
		}
	}
	for i, m := range metas[1:] {
		if m.Fingerprint != metas[0].Fingerprint || !m.Type.Equal(metas[0].Type) {
			return nil, newError(op, TypeMismatch, "rank %d has element type %s, rank 0 has %s", i+1, m.Type, metas[0].Type)
		}
	}
	for i, m := range metas[1:] {
		if !intsEqual(m.Trailing, metas[0].Trailing) {
			return nil, newError(op, ShapeMismatch, "rank %d has trailing shape %v, rank 0 has %v", i+1, m.Trailing, metas[0].Trailing)
		}
	}
	return metas, nil
}

// Gather gathers the local buffers of every rank into a single frame
// holding the rows of rank 0, then rank 1, and so on. The frame is
// returned on rank root, or on every rank if root is comm.All; other
// ranks receive the zero frame. All ranks must supply buffers of the
// same element type and trailing shape.
func Gather(ctx context.Context, c *comm.Comm, local frame.Frame, root int) (frame.Frame, error) {
	const op = "darray.Gather"
	if root != comm.All && (root < 0 || root >= c.Size()) {
		return frame.Frame{}, errors.E(errors.Invalid, op, fmt.Sprintf("invalid root %d", root))
	}
	metas, err := gatherMeta(ctx, c, op, local)
	if err != nil {
		return frame.Frame{}, err
	}
	counts := make([]int, len(metas))
	for i, m := range metas {
		counts[i] = m.Len
	}
	offsets, total := comm.Offsets(counts)
	log.Debug.Printf("%s: gathering %d rows of %s to root %d", c, total, metas[0].Type, root)
	return gatherFrame(ctx, c, local, counts, offsets, total, root)
}

// GatherFrame gathers local, recursing into the fields of compound
// element types so that every transfer moves a flat run of records.
func gatherFrame(ctx context.Context, c *comm.Comm, local frame.Frame, counts, offsets []int, total, root int) (frame.Frame, error) {
	var (
		typ      = local.ElemType()
		trailing = local.Trailing()
		dest     = root == comm.All || root == c.Rank()
		out      frame.Frame
	)
	if dest {
		out = frame.Make(typ, total, trailing...)
	}
	if typ.Kind() == reflect.Struct {
		for i := 0; i < typ.NumField(); i++ {
			name := typ.Field(i).Name
			col, err := gatherFrame(ctx, c, local.Field(name), counts, offsets, total, root)
			if err != nil {
				return frame.Frame{}, err
			}
			if dest {
				out.SetField(name, col)
			}
		}
		return out, nil
	}
	var (
		dt   = comm.Contiguous(int(typ.Size()), local.RowSize())
		recv []byte
	)
	if dest {
		recv = out.Bytes()
	}
	if root == comm.All {
		return out, c.Allgatherv(ctx, local.Bytes(), recv, counts, offsets, dt)
	}
	return out, c.Gatherv(ctx, local.Bytes(), recv, counts, offsets, dt, root)
}

// A scatterMeta describes the root's buffer and the outcome of its
// local validation.
type scatterMeta struct {
	Meta    meta
	Counts  []int
	Kind    Kind
	Message string
}

// Scatter distributes the rows of data on rank root to every rank:
// rank i receives counts[i] consecutive rows, in rank order. If counts
// is nil, the rows are divided as evenly as possible, with the
// remainder going to the lowest ranks. Only the root's data and counts
// are used. Other ranks may pass a zero-length frame of the expected
// element type as data, or the zero frame, in which case the element
// type is reconstructed from the root's description.
func Scatter(ctx context.Context, c *comm.Comm, data frame.Frame, root int, counts []int) (frame.Frame, error) {
	const op = "darray.Scatter"
	if root < 0 || root >= c.Size() {
		return frame.Frame{}, errors.E(errors.Invalid, op, fmt.Sprintf("invalid root %d", root))
	}
	var m scatterMeta
	if c.Rank() == root {
		m = rootMeta(data, counts, c.Size())
	}
	if err := c.Bcast(ctx, root, &m); err != nil {
		return frame.Frame{}, err
	}
	if m.Kind != OK {
		return frame.Frame{}, newError(op, m.Kind, "root %d: %s", root, m.Message)
	}

	var (
		typ reflect.Type
		err error
	)
	switch {
	case c.Rank() == root:
		typ = data.ElemType()
	case data.IsValid():
		typ = data.ElemType()
		if t := dtype.Of(typ); !t.Equal(m.Meta.Type) {
			err = newError(op, TypeMismatch, "rank %d expects element type %s, root %d has %s", c.Rank(), t, root, m.Meta.Type)
		}
	default:
		typ, err = m.Meta.Type.ReflectType()
		if err != nil {
			err = newError(op, UnsupportedElementType, "cannot reconstruct element type %s: %v", m.Meta.Type, err)
		}
	}
	if err := agree(ctx, c, op, err); err != nil {
		return frame.Frame{}, err
	}
	offsets, _ := comm.Offsets(m.Counts)
	if err := c.Barrier(ctx); err != nil {
		return frame.Frame{}, err
	}
	return scatterFrame(ctx, c, data, typ, m.Meta.Trailing, m.Counts, offsets, root)
}

// RootMeta validates the root's scatter arguments.
func rootMeta(data frame.Frame, counts []int, size int) scatterMeta {
	m := scatterMeta{Meta: metaOf(data)}
	if !data.IsValid() {
		m.Kind, m.Message = InvalidLocalInput, "no data supplied"
		return m
	}
	if path, ok := m.Meta.Type.BoxedPath(); ok {
		m.Kind, m.Message = UnsupportedElementType, fmt.Sprintf("element type %s has boxed field %s", m.Meta.Type, path)
		return m
	}
	if counts == nil {
		m.Counts = evenCounts(m.Meta.Len, size)
		return m
	}
	if len(counts) != size {
		m.Kind, m.Message = CountMismatch, fmt.Sprintf("%d counts for %d ranks", len(counts), size)
		return m
	}
	var sum int
	for _, n := range counts {
		if n < 0 {
			m.Kind, m.Message = CountMismatch, fmt.Sprintf("negative count in %v", counts)
			return m
		}
		sum += n
	}
	if sum != m.Meta.Len {
		m.Kind, m.Message = CountMismatch, fmt.Sprintf("counts %v sum to %d, data has %d rows", counts, sum, m.Meta.Len)
		return m
	}
	m.Counts = counts
	return m
}

func scatterFrame(ctx context.Context, c *comm.Comm, data frame.Frame, typ reflect.Type, trailing, counts, offsets []int, root int) (frame.Frame, error) {
	out := frame.Make(typ, counts[c.Rank()], trailing...)
	if typ.Kind() == reflect.Struct {
		for i := 0; i < typ.NumField(); i++ {
			f := typ.Field(i)
			var col frame.Frame
			if c.Rank() == root {
				col = data.Field(f.Name)
			}
			sub, err := scatterFrame(ctx, c, col, f.Type, trailing, counts, offsets, root)
			if err != nil {
				return frame.Frame{}, err
			}
			out.SetField(f.Name, sub)
		}
		return out, nil
	}
	var send []byte
	if c.Rank() == root {
		send = data.Bytes()
	}
	dt := comm.Contiguous(int(typ.Size()), product(trailing))
	return out, c.Scatterv(ctx, send, counts, offsets, dt, out.Bytes(), root)
}

// EvenCounts divides n rows among size ranks, giving the remainder to
// the lowest ranks.
func evenCounts(n, size int) []int {
	counts := make([]int, size)
	for i := range counts {
		counts[i] = n / size
		if i < n%size {
			counts[i]++
		}
	}
	return counts
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}
