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

func TestFrontPad(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for iter := 0; iter < 10; iter++ {
		n := 1 + r.Intn(6)
		global := make([]int16, 2*(r.Intn(30)+1))
		for i := range global {
			global[i] = int16(i)
		}
		rows := len(global) / 2
		ranges := darraytest.Split(darraytest.Partition(r, rows, n))
		fronts := make([]int, n)
		for i, rg := range ranges {
			fronts[i] = r.Intn(rg[0] + 1)
		}
		darraytest.Run(t, n, func(ctx context.Context, c *comm.Comm) error {
			rg := ranges[c.Rank()]
			local := frame.Of(global[2*rg[0]:2*rg[1]], 2)
			padded, err := FrontPad(ctx, c, local, fronts[c.Rank()])
			if err != nil {
				return err
			}
			want := frame.Of(global[2*(rg[0]-fronts[c.Rank()]):2*rg[1]], 2)
			if !frame.Equal(padded, want) {
				return fmt.Errorf("rank %d: got %v, want %v", c.Rank(), padded.Interface(), want.Interface())
			}
			return nil
		})
	}
}

func TestFrontPadInfeasible(t *testing.T) {
	for _, front := range []int{1, 3} {
		front := front
		errs := darraytest.RunErrors(t, 4, func(ctx context.Context, c *comm.Comm) error {
			f := 0
			switch c.Rank() {
			case 0:
				f = front - 1
			case 2:
				f = front + 2
			}
			_, err := FrontPad(ctx, c, frame.Of([]float64{1}), f)
			return err
		})
		checkKinds(t, errs, PaddingInfeasible)
	}
}
