// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package psort

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/darray/comm"
	"github.com/grailbio/darray/frame"
)

type record struct {
	Key  uint64
	Orig int64
}

func TestSort(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		for _, layout := range []string{"even", "last", "first"} {
			n, layout := n, layout
			t.Run(fmt.Sprintf("%d/%s", n, layout), func(t *testing.T) {
				testSort(t, n, layout)
			})
		}
	}
}

func testSort(t *testing.T, n int, layout string) {
	lens := make([]int, n)
	var total int
	for i := range lens {
		lens[i] = (i*7 + 3) % 11
		total += lens[i]
	}
	outs := make([]int, n)
	switch layout {
	case "even":
		for i := range outs {
			outs[i] = total / n
			if i < total%n {
				outs[i]++
			}
		}
	case "last":
		outs[n-1] = total
	case "first":
		outs[0] = total
	}
	var (
		keys    = make([][]uint64, n)
		records = make([][]record, n)
	)
	err := comm.Run(context.Background(), n, func(ctx context.Context, c *comm.Comm) error {
		r := rand.New(rand.NewSource(int64(c.Rank())))
		var offset int
		for i := 0; i < c.Rank(); i++ {
			offset += lens[i]
		}
		k := make([]uint64, lens[c.Rank()])
		recs := make([]record, len(k))
		for i := range k {
			k[i] = uint64(r.Intn(5))
			recs[i] = record{k[i], int64(offset + i)}
		}
		sk, sr, err := Sort(ctx, c, k, frame.Of(recs), outs[c.Rank()])
		if err != nil {
			return err
		}
		keys[c.Rank()] = sk
		records[c.Rank()] = sr.Interface().([]record)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	var (
		all  []record
		seen = make(map[int64]bool)
	)
	for i := range records {
		if got, want := len(records[i]), outs[i]; got != want {
			t.Errorf("rank %d: got %v rows, want %v", i, got, want)
		}
		for j, rec := range records[i] {
			if keys[i][j] != rec.Key {
				t.Errorf("rank %d: key %d does not match record %v", i, keys[i][j], rec)
			}
		}
		all = append(all, records[i]...)
	}
	if got, want := len(all), total; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, rec := range all {
		if seen[rec.Orig] {
			t.Errorf("duplicate record %v", rec)
		}
		seen[rec.Orig] = true
		if i == 0 {
			continue
		}
		prev := all[i-1]
		if prev.Key > rec.Key || prev.Key == rec.Key && prev.Orig > rec.Orig {
			t.Errorf("records %d and %d out of order: %v %v", i-1, i, prev, rec)
		}
	}
}

func TestSortTrailing(t *testing.T) {
	out := make([][]float32, 2)
	err := comm.Run(context.Background(), 2, func(ctx context.Context, c *comm.Comm) error {
		var (
			keys []uint64
			vals []float32
		)
		if c.Rank() == 0 {
			keys = []uint64{3, 1}
			vals = []float32{3, 30, 1, 10}
		} else {
			keys = []uint64{2, 0}
			vals = []float32{2, 20, 0, 0}
		}
		_, f, err := Sort(ctx, c, keys, frame.Of(vals, 2), 2)
		if err != nil {
			return err
		}
		if got, want := f.Trailing(), []int{2}; len(got) != 1 || got[0] != want[0] {
			return fmt.Errorf("got trailing %v, want %v", got, want)
		}
		out[c.Rank()] = f.Interface().([]float32)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float32{{0, 0, 1, 10}, {2, 20, 3, 30}}
	for i := range want {
		if fmt.Sprint(out[i]) != fmt.Sprint(want[i]) {
			t.Errorf("rank %d: got %v, want %v", i, out[i], want[i])
		}
	}
}

func TestSortCountMismatch(t *testing.T) {
	errs := comm.RunAll(context.Background(), 3, func(ctx context.Context, c *comm.Comm) error {
		keys := []uint64{uint64(c.Rank())}
		_, _, err := Sort(ctx, c, keys, frame.Of([]int64{int64(c.Rank())}), 2)
		return err
	})
	for i, err := range errs {
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("rank %d: got %v, want invalid error", i, err)
		}
	}
}

func TestMerge(t *testing.T) {
	runs := []*run{
		{items: []item{{1, 0}, {4, 1}}, base: 0},
		{items: nil, base: 2},
		{items: []item{{1, 5}, {2, 6}, {9, 7}}, base: 2},
	}
	items, order := merge(runs)
	wantItems := []item{{1, 0}, {1, 5}, {2, 6}, {4, 1}, {9, 7}}
	wantOrder := []int{0, 2, 3, 1, 4}
	if fmt.Sprint(items) != fmt.Sprint(wantItems) {
		t.Errorf("got %v, want %v", items, wantItems)
	}
	if fmt.Sprint(order) != fmt.Sprint(wantOrder) {
		t.Errorf("got %v, want %v", order, wantOrder)
	}
}
