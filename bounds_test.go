// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/grailbio/darray/comm"
	"github.com/grailbio/darray/darraytest"
	"github.com/grailbio/darray/frame"
	"github.com/grailbio/darray/internal/defaultsize"
)

func TestBounds(t *testing.T) {
	defer func(chunk int) { defaultsize.Chunk = chunk }(defaultsize.Chunk)
	defaultsize.Chunk = 3

	r := rand.New(rand.NewSource(5))
	global := make([]float32, 3*40)
	for i := range global {
		global[i] = float32(r.NormFloat64())
	}
	var (
		wantMin = []float64{math.Inf(1), math.Inf(1), math.Inf(1)}
		wantMax = []float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	)
	for i, x := range global {
		wantMin[i%3] = math.Min(wantMin[i%3], float64(x))
		wantMax[i%3] = math.Max(wantMax[i%3], float64(x))
	}
	ranges := darraytest.Split(darraytest.Partition(r, 40, 5))
	darraytest.Run(t, 5, func(ctx context.Context, c *comm.Comm) error {
		rg := ranges[c.Rank()]
		a, err := New(ctx, c, frame.Of(global[3*rg[0]:3*rg[1]], 3))
		if err != nil {
			return err
		}
		min, max, err := a.Bounds(ctx)
		if err != nil {
			return err
		}
		if fmt.Sprint(min) != fmt.Sprint(wantMin) || fmt.Sprint(max) != fmt.Sprint(wantMax) {
			return fmt.Errorf("got %v %v, want %v %v", min, max, wantMin, wantMax)
		}
		return nil
	})
}

func TestBoundsEmpty(t *testing.T) {
	darraytest.Run(t, 2, func(ctx context.Context, c *comm.Comm) error {
		a, err := New(ctx, c, frame.Of([]int64{}))
		if err != nil {
			return err
		}
		min, max, err := a.Bounds(ctx)
		if err != nil {
			return err
		}
		if !math.IsInf(min[0], 1) || !math.IsInf(max[0], -1) {
			return fmt.Errorf("got %v %v", min, max)
		}
		return nil
	})
}
