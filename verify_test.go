// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/grailbio/darray/comm"
	"github.com/grailbio/darray/darraytest"
	"github.com/grailbio/darray/frame"
)

func TestIsSorted(t *testing.T) {
	for _, c := range []struct {
		locals [][]int64
		sorted bool
	}{
		{[][]int64{{1, 2}, {2, 3}, {}, {4}}, true},
		{[][]int64{{1, 2}, {}, {1, 3}}, false},
		{[][]int64{{2, 1}, {3}}, false},
		{[][]int64{{}, {}, {}}, true},
	} {
		c := c
		darraytest.Run(t, len(c.locals), func(ctx context.Context, cm *comm.Comm) error {
			a, err := New(ctx, cm, frame.Of(c.locals[cm.Rank()]))
			if err != nil {
				return err
			}
			sorted, err := a.IsSorted(ctx)
			if err != nil {
				return err
			}
			if got, want := sorted, c.sorted; got != want {
				return fmt.Errorf("%v: got %v, want %v", c.locals, got, want)
			}
			return nil
		})
	}
}

func TestSortChecksum(t *testing.T) {
	const n = 4
	r := rand.New(rand.NewSource(3))
	counts := darraytest.Partition(r, 200, n)
	locals := make([][]uint64, n)
	for i := range locals {
		locals[i] = make([]uint64, counts[i])
		for j := range locals[i] {
			locals[i][j] = uint64(r.Intn(50))
		}
	}
	darraytest.Run(t, n, func(ctx context.Context, c *comm.Comm) error {
		a, err := New(ctx, c, frame.Of(locals[c.Rank()]))
		if err != nil {
			return err
		}
		before, err := a.Checksum(ctx)
		if err != nil {
			return err
		}
		if err := a.Sort(ctx, ""); err != nil {
			return err
		}
		sorted, err := a.IsSorted(ctx)
		if err != nil {
			return err
		}
		if !sorted {
			return fmt.Errorf("rank %d: array not sorted", c.Rank())
		}
		after, err := a.Checksum(ctx)
		if err != nil {
			return err
		}
		if before != after {
			return fmt.Errorf("rank %d: checksum changed from %x to %x", c.Rank(), before, after)
		}
		return nil
	})
}

func TestVerifyUnsupported(t *testing.T) {
	errs := darraytest.RunErrors(t, 2, func(ctx context.Context, c *comm.Comm) error {
		a, err := New(ctx, c, frame.Of([]float64{1, 2}))
		if err != nil {
			return err
		}
		_, err = a.Checksum(ctx)
		return err
	})
	for i, err := range errs {
		if got, want := KindOf(err), UnsupportedElementType; got != want {
			t.Errorf("rank %d: got %v, want %v", i, got, want)
		}
	}
	errs = darraytest.RunErrors(t, 2, func(ctx context.Context, c *comm.Comm) error {
		a, err := New(ctx, c, frame.Of(make([]int64, 4), 2))
		if err != nil {
			return err
		}
		_, err = a.IsSorted(ctx)
		return err
	})
	for i, err := range errs {
		if got, want := KindOf(err), UnsupportedElementType; got != want {
			t.Errorf("rank %d: got %v, want %v", i, got, want)
		}
	}
}
