// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/grailbio/base/errors"
)

// A Datatype describes the unit in which the counts and offsets of
// the variable-size collectives are expressed.
type Datatype struct {
	// Size is the number of bytes in one unit.
	Size int
}

// Byte is the datatype of single bytes.
var Byte = Datatype{Size: 1}

// Contiguous returns a datatype comprising count consecutive
// elements of elemSize bytes each. This is the datatype of one row of
// a striped array.
func Contiguous(elemSize, count int) Datatype {
	return Datatype{Size: elemSize * count}
}

// Op is a reduction operator.
type Op int

const (
	// Sum adds values.
	Sum Op = iota
	// Max takes the maximum value.
	Max
	// Min takes the minimum value.
	Min
	// LOR is logical or.
	LOR
	// LAND is logical and.
	LAND
)

var opNames = [...]string{
	Sum:  "sum",
	Max:  "max",
	Min:  "min",
	LOR:  "lor",
	LAND: "land",
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", int(op))
	}
	return opNames[op]
}

// Barrier blocks until every rank has entered the barrier.
func (c *Comm) Barrier(ctx context.Context) error {
	tag := c.begin("barrier")
	if c.Rank() != 0 {
		if err := c.send(ctx, 0, tag, nil); err != nil {
			return err
		}
		_, err := c.recv(ctx, 0, tag)
		return err
	}
	for i := 1; i < c.Size(); i++ {
		if _, err := c.recv(ctx, i, tag); err != nil {
			return err
		}
	}
	for i := 1; i < c.Size(); i++ {
		if err := c.send(ctx, i, tag, nil); err != nil {
			return err
		}
	}
	return nil
}

// Bcast broadcasts the value pointed to by ptr on rank root to every
// other rank, where it is decoded into ptr. Values are gob-encoded.
func (c *Comm) Bcast(ctx context.Context, root int, ptr interface{}) error {
	tag := c.begin(fmt.Sprintf("bcast(root=%d)", root))
	if err := c.checkRank("bcast", root, false); err != nil {
		return err
	}
	if c.Rank() != root {
		p, err := c.recv(ctx, root, tag)
		if err != nil {
			return err
		}
		return decode(p, ptr)
	}
	p, err := encode(ptr)
	if err != nil {
		return err
	}
	for i := 0; i < c.Size(); i++ {
		if i == root {
			continue
		}
		if err := c.send(ctx, i, tag, p); err != nil {
			return err
		}
	}
	return nil
}

// Allgather gathers the value v from every rank into the slice
// pointed to by out, indexed by rank. Values are gob-encoded and
// decoded into the slice's element type.
func (c *Comm) Allgather(ctx context.Context, v, out interface{}) error {
	tag := c.begin("allgather")
	return c.allgather(ctx, tag, v, out)
}

func (c *Comm) allgather(ctx context.Context, tag uint64, v, out interface{}) error {
	outv := reflect.ValueOf(out)
	if outv.Kind() != reflect.Ptr || outv.Elem().Kind() != reflect.Slice {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: allgather: expected pointer to slice, got %T", c, out))
	}
	p, err := encode(v)
	if err != nil {
		return err
	}
	for i := 0; i < c.Size(); i++ {
		if err := c.send(ctx, i, tag, p); err != nil {
			return err
		}
	}
	slice := reflect.MakeSlice(outv.Elem().Type(), c.Size(), c.Size())
	for i := 0; i < c.Size(); i++ {
		q, err := c.recv(ctx, i, tag)
		if err != nil {
			return err
		}
		if err := decode(q, slice.Index(i).Addr().Interface()); err != nil {
			return err
		}
	}
	outv.Elem().Set(slice)
	return nil
}

// Alltoall sends element j of the slice in to rank j and stores the
// value received from rank i at index i of the slice pointed to by
// out. Values are gob-encoded.
func (c *Comm) Alltoall(ctx context.Context, in, out interface{}) error {
	tag := c.begin("alltoall")
	inv := reflect.ValueOf(in)
	if inv.Kind() != reflect.Slice || inv.Len() != c.Size() {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: alltoall: expected slice of length %d", c, c.Size()))
	}
	outv := reflect.ValueOf(out)
	if outv.Kind() != reflect.Ptr || outv.Elem().Kind() != reflect.Slice {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: alltoall: expected pointer to slice, got %T", c, out))
	}
	for i := 0; i < c.Size(); i++ {
		p, err := encode(inv.Index(i).Interface())
		if err != nil {
			return err
		}
		if err := c.send(ctx, i, tag, p); err != nil {
			return err
		}
	}
	slice := reflect.MakeSlice(outv.Elem().Type(), c.Size(), c.Size())
	for i := 0; i < c.Size(); i++ {
		q, err := c.recv(ctx, i, tag)
		if err != nil {
			return err
		}
		if err := decode(q, slice.Index(i).Addr().Interface()); err != nil {
			return err
		}
	}
	outv.Elem().Set(slice)
	return nil
}

// AllreduceInt reduces v across all ranks with the provided operator
// and returns the result on every rank.
func (c *Comm) AllreduceInt(ctx context.Context, v int64, op Op) (int64, error) {
	tag := c.begin(fmt.Sprintf("allreduce(%s)", op))
	var all []int64
	if err := c.allgather(ctx, tag, v, &all); err != nil {
		return 0, err
	}
	r := all[0]
	for _, w := range all[1:] {
		switch op {
		case Sum:
			r += w
		case Max:
			if w > r {
				r = w
			}
		case Min:
			if w < r {
				r = w
			}
		default:
			return 0, errors.E(errors.Invalid, fmt.Sprintf("%s: allreduce: operator %s not defined on integers", c, op))
		}
	}
	return r, nil
}

// AllreduceBool reduces v across all ranks with the provided logical
// operator and returns the result on every rank.
func (c *Comm) AllreduceBool(ctx context.Context, v bool, op Op) (bool, error) {
	tag := c.begin(fmt.Sprintf("allreduce(%s)", op))
	var all []bool
	if err := c.allgather(ctx, tag, v, &all); err != nil {
		return false, err
	}
	r := all[0]
	for _, w := range all[1:] {
		switch op {
		case LOR:
			r = r || w
		case LAND:
			r = r && w
		default:
			return false, errors.E(errors.Invalid, fmt.Sprintf("%s: allreduce: operator %s not defined on booleans", c, op))
		}
	}
	return r, nil
}

// Gatherv gathers a variable number of units from every rank into
// the buffer recv on rank root. Rank i contributes send, which must
// hold counts[i] units; it is stored at unit offsets[i] of recv. The
// counts, offsets, and recv arguments are used only on the root. If
// root is All, every rank receives the gathered buffer.
func (c *Comm) Gatherv(ctx context.Context, send, recv []byte, counts, offsets []int, dt Datatype, root int) error {
	tag := c.begin(fmt.Sprintf("gatherv(root=%d)", root))
	if err := c.checkRank("gatherv", root, true); err != nil {
		return err
	}
	if root == All {
		return c.gathervAll(ctx, tag, send, recv, counts, offsets, dt)
	}
	if err := c.send(ctx, root, tag, send); err != nil {
		return err
	}
	if c.Rank() != root {
		return nil
	}
	return c.recvv(ctx, tag, recv, counts, offsets, dt)
}

// Allgatherv is Gatherv with root All.
func (c *Comm) Allgatherv(ctx context.Context, send, recv []byte, counts, offsets []int, dt Datatype) error {
	tag := c.begin("allgatherv")
	return c.gathervAll(ctx, tag, send, recv, counts, offsets, dt)
}

func (c *Comm) gathervAll(ctx context.Context, tag uint64, send, recv []byte, counts, offsets []int, dt Datatype) error {
	for i := 0; i < c.Size(); i++ {
		if err := c.send(ctx, i, tag, send); err != nil {
			return err
		}
	}
	return c.recvv(ctx, tag, recv, counts, offsets, dt)
}

// Recvv receives one contribution from every rank into the provided
// regions of recv.
func (c *Comm) recvv(ctx context.Context, tag uint64, recv []byte, counts, offsets []int, dt Datatype) error {
	if err := c.checkLayout(len(recv), counts, offsets, dt); err != nil {
		return err
	}
	for i := 0; i < c.Size(); i++ {
		lo := offsets[i] * dt.Size
		hi := lo + counts[i]*dt.Size
		if err := c.recvInto(ctx, i, tag, recv[lo:hi]); err != nil {
			return err
		}
	}
	return nil
}

// Scatterv distributes regions of the buffer send on rank root: rank
// i receives counts[i] units starting at unit offsets[i] into recv,
// which must be exactly that size. The send, counts, and offsets
// arguments are used only on the root.
func (c *Comm) Scatterv(ctx context.Context, send []byte, counts, offsets []int, dt Datatype, recv []byte, root int) error {
	tag := c.begin(fmt.Sprintf("scatterv(root=%d)", root))
	if err := c.checkRank("scatterv", root, false); err != nil {
		return err
	}
	if c.Rank() == root {
		if err := c.checkLayout(len(send), counts, offsets, dt); err != nil {
			return err
		}
		for i := 0; i < c.Size(); i++ {
			lo := offsets[i] * dt.Size
			hi := lo + counts[i]*dt.Size
			if err := c.send(ctx, i, tag, send[lo:hi]); err != nil {
				return err
			}
		}
	}
	return c.recvInto(ctx, root, tag, recv)
}

// Alltoallv sends send[j] to rank j and returns the buffers received
// from every rank, indexed by source rank.
func (c *Comm) Alltoallv(ctx context.Context, send [][]byte) ([][]byte, error) {
	tag := c.begin("alltoallv")
	if len(send) != c.Size() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: alltoallv: expected %d buffers, got %d", c, c.Size(), len(send)))
	}
	for i, p := range send {
		if err := c.send(ctx, i, tag, p); err != nil {
			return nil, err
		}
	}
	recv := make([][]byte, c.Size())
	for i := range recv {
		var err error
		if recv[i], err = c.recv(ctx, i, tag); err != nil {
			return nil, err
		}
	}
	return recv, nil
}

func (c *Comm) checkLayout(n int, counts, offsets []int, dt Datatype) error {
	if len(counts) != c.Size() || len(offsets) != c.Size() {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: expected %d counts and offsets, got %d and %d", c, c.Size(), len(counts), len(offsets)))
	}
	for i := range counts {
		if counts[i] < 0 || offsets[i] < 0 || (offsets[i]+counts[i])*dt.Size > n {
			return errors.E(errors.Invalid, fmt.Sprintf("%s: region %d [%d, %d) of %d-byte units exceeds buffer of %d bytes", c, i, offsets[i], offsets[i]+counts[i], dt.Size, n))
		}
	}
	return nil
}

// Offsets returns the exclusive prefix sum of counts: the offset at
// which each rank's contribution begins in a gathered buffer. The
// total is returned as well.
func Offsets(counts []int) (offsets []int, total int) {
	offsets = make([]int, len(counts))
	for i, n := range counts {
		offsets[i] = total
		total += n
	}
	return
}
