// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"
	"fmt"
	"reflect"

	"github.com/grailbio/base/log"
	"github.com/grailbio/darray/comm"
	"github.com/grailbio/darray/frame"
)

// A Value is a single row reported by a rank, or EmptyRank if the
// rank holds no rows. Values are used to describe the boundaries
// between the local buffers of striped arrays.
type Value struct {
	row frame.Frame
}

// EmptyRank is the Value reported by ranks that hold no rows. It is
// not equal to any row.
var EmptyRank = Value{}

func valueOf(row frame.Frame) Value { return Value{row} }

// IsEmpty tells whether v is EmptyRank.
func (v Value) IsEmpty() bool { return !v.row.IsValid() }

// Frame returns the single-row frame holding v.
func (v Value) Frame() frame.Frame { return v.row }

// Interface returns the value as an interface{}: the element itself
// for arrays with one element per row, or a slice of the row's
// elements otherwise. Interface returns nil for EmptyRank.
func (v Value) Interface() interface{} {
	if v.IsEmpty() {
		return nil
	}
	if v.row.NumElems() == 1 {
		return v.row.Elem(0).Interface()
	}
	return v.row.Interface()
}

// Int returns the value as an int64. Int panics unless v holds a
// single element of integer kind.
func (v Value) Int() int64 {
	e := v.row.Elem(0)
	switch e.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(e.Uint())
	}
	panic(fmt.Sprintf("darray.Value.Int: %v is not an integer", v))
}

// Float returns the value as a float64. Float panics unless v holds
// a single element of numeric kind.
func (v Value) Float() float64 {
	e := v.row.Elem(0)
	if k := e.Kind(); k == reflect.Float32 || k == reflect.Float64 {
		return e.Float()
	}
	return float64(v.Int())
}

// Equal tells whether v and w hold the same row. EmptyRank equals
// only itself.
func (v Value) Equal(w Value) bool {
	if v.IsEmpty() || w.IsEmpty() {
		return v.IsEmpty() && w.IsEmpty()
	}
	return v.row.ElemType() == w.row.ElemType() && v.row.RowEqual(0, w.row, 0)
}

func (v Value) String() string {
	if v.IsEmpty() {
		return "EmptyRank"
	}
	return fmt.Sprint(v.Interface())
}

// A Topology resolves the boundaries between the local buffers of a
// striped array. Every method is collective.
type Topology struct {
	comm  *comm.Comm
	local frame.Frame
}

// NewTopology returns the topology of the striped array whose local
// buffer on this rank is local. The element type must be free of
// pointers.
func NewTopology(c *comm.Comm, local frame.Frame) *Topology {
	return &Topology{comm: c, local: local}
}

// A boundary is the raw encoding of a rank's first or last row.
type boundary struct {
	Empty bool
	Row   []byte
}

func (t *Topology) exchange(ctx context.Context, row int) ([]Value, error) {
	b := boundary{Empty: true}
	if t.local.Len() > 0 {
		if row < 0 {
			row = t.local.Len() - 1
		}
		b = boundary{Row: t.local.Row(row).Bytes()}
	}
	var all []boundary
	if err := t.comm.Allgather(ctx, b, &all); err != nil {
		return nil, err
	}
	values := make([]Value, len(all))
	for i, b := range all {
		if b.Empty {
			continue
		}
		values[i] = valueOf(frame.FromBytes(t.local.ElemType(), b.Row, t.local.Trailing()...))
	}
	return values, nil
}

// Heads returns the first row of every rank, or EmptyRank for ranks
// that hold no rows.
func (t *Topology) Heads(ctx context.Context) ([]Value, error) {
	return t.exchange(ctx, 0)
}

// Tails returns the last row of every rank, or EmptyRank for ranks
// that hold no rows.
func (t *Topology) Tails(ctx context.Context) ([]Value, error) {
	return t.exchange(ctx, -1)
}

// Prev returns the last row of the nearest lower rank that holds
// rows, or EmptyRank if there is none.
func (t *Topology) Prev(ctx context.Context) (Value, error) {
	tails, err := t.Tails(ctx)
	if err != nil {
		return EmptyRank, err
	}
	for i := t.comm.Rank() - 1; i >= 0; i-- {
		if !tails[i].IsEmpty() {
			return tails[i], nil
		}
	}
	return EmptyRank, nil
}

// Next returns the first row of the nearest higher rank that holds
// rows, or EmptyRank if there is none.
func (t *Topology) Next(ctx context.Context) (Value, error) {
	heads, err := t.Heads(ctx)
	if err != nil {
		return EmptyRank, err
	}
	for i := t.comm.Rank() + 1; i < len(heads); i++ {
		if !heads[i].IsEmpty() {
			log.Debug.Printf("%s: next non-empty rank is %d", t.comm, i)
			return heads[i], nil
		}
	}
	return EmptyRank, nil
}
