// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"
	"fmt"
	"testing"

	"github.com/grailbio/darray/comm"
	"github.com/grailbio/darray/darraytest"
	"github.com/grailbio/darray/frame"
)

func TestTopology(t *testing.T) {
	locals := [][]int64{{1, 2}, {}, {3}, {}, {4, 5, 6}, {}}
	var (
		wantHeads = []string{"1", "EmptyRank", "3", "EmptyRank", "4", "EmptyRank"}
		wantTails = []string{"2", "EmptyRank", "3", "EmptyRank", "6", "EmptyRank"}
		wantPrev  = []string{"EmptyRank", "2", "2", "3", "3", "6"}
		wantNext  = []string{"3", "3", "4", "4", "EmptyRank", "EmptyRank"}
	)
	darraytest.Run(t, len(locals), func(ctx context.Context, c *comm.Comm) error {
		top := NewTopology(c, frame.Of(locals[c.Rank()]))
		heads, err := top.Heads(ctx)
		if err != nil {
			return err
		}
		tails, err := top.Tails(ctx)
		if err != nil {
			return err
		}
		if got, want := fmt.Sprint(heads), fmt.Sprint(wantHeads); got != want {
			return fmt.Errorf("heads: got %v, want %v", got, want)
		}
		if got, want := fmt.Sprint(tails), fmt.Sprint(wantTails); got != want {
			return fmt.Errorf("tails: got %v, want %v", got, want)
		}
		prev, err := top.Prev(ctx)
		if err != nil {
			return err
		}
		next, err := top.Next(ctx)
		if err != nil {
			return err
		}
		if got, want := prev.String(), wantPrev[c.Rank()]; got != want {
			return fmt.Errorf("rank %d: prev: got %v, want %v", c.Rank(), got, want)
		}
		if got, want := next.String(), wantNext[c.Rank()]; got != want {
			return fmt.Errorf("rank %d: next: got %v, want %v", c.Rank(), got, want)
		}
		return nil
	})
}

func TestValue(t *testing.T) {
	var (
		a = valueOf(frame.Of([]int64{0}))
		b = valueOf(frame.Of([]int64{0}))
		c = valueOf(frame.Of([]int64{1}))
		d = valueOf(frame.Of([]int32{0}))
	)
	if !a.Equal(b) || a.Equal(c) || a.Equal(d) {
		t.Error("unexpected value equality")
	}
	if a.Equal(EmptyRank) || EmptyRank.Equal(a) {
		t.Error("EmptyRank equals a value")
	}
	if !EmptyRank.Equal(EmptyRank) {
		t.Error("EmptyRank does not equal itself")
	}
	if got, want := c.Int(), int64(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := c.Float(), 1.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	row := valueOf(frame.Of([]float32{1, 2}, 2))
	if got, want := fmt.Sprint(row), "[1 2]"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if EmptyRank.Interface() != nil {
		t.Error("EmptyRank has a value")
	}
}
