// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/darray/comm"
	"github.com/grailbio/darray/darraytest"
	"github.com/grailbio/darray/frame"
)

type vec struct {
	X, Y float32
}

type particle struct {
	ID   uint64
	Pos  vec
	Mass float64
	Tags [2]int16
}

var (
	typeOfParticle = reflect.TypeOf(particle{})
	typeOfInt64    = reflect.TypeOf(int64(0))
)

func fuzzParticles(seed int64) []particle {
	var ps []particle
	fz := fuzz.NewWithSeed(seed).NilChance(0).NumElements(0, 60)
	fz.Fuzz(&ps)
	return ps
}

func TestGatherScatterRoundTrip(t *testing.T) {
	for n := 1; n <= 8; n++ {
		n := n
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			global := fuzzParticles(int64(n))
			counts := darraytest.Partition(rand.New(rand.NewSource(int64(n))), len(global), n)
			ranges := darraytest.Split(counts)
			darraytest.Run(t, n, func(ctx context.Context, c *comm.Comm) error {
				r := ranges[c.Rank()]
				local := frame.Of(global[r[0]:r[1]])
				g, err := Gather(ctx, c, local, 0)
				if err != nil {
					return err
				}
				data := frame.Make(typeOfParticle, 0)
				if c.Rank() == 0 {
					if !frame.Equal(g, frame.Of(global)) {
						return fmt.Errorf("gathered %v, want %d rows", g, len(global))
					}
					data = g
				} else if g.IsValid() {
					return fmt.Errorf("rank %d: unexpected gather result %v", c.Rank(), g)
				}
				back, err := Scatter(ctx, c, data, 0, counts)
				if err != nil {
					return err
				}
				if !frame.Equal(back, local) {
					return fmt.Errorf("rank %d: scattered %v, want %v", c.Rank(), back, local)
				}
				return nil
			})
		})
	}
}

func TestGatherTrailing(t *testing.T) {
	const n = 4
	counts := []int{2, 0, 3, 1}
	ranges := darraytest.Split(counts)
	global := make([]int32, 6*3)
	for i := range global {
		global[i] = int32(i)
	}
	darraytest.Run(t, n, func(ctx context.Context, c *comm.Comm) error {
		r := ranges[c.Rank()]
		local := frame.Of(global[r[0]*3:r[1]*3], 3)
		g, err := Gather(ctx, c, local, comm.All)
		if err != nil {
			return err
		}
		if got, want := g.Shape(), []int{6, 3}; !reflect.DeepEqual(got, want) {
			return fmt.Errorf("got shape %v, want %v", got, want)
		}
		if !frame.Equal(g, frame.Of(global, 3)) {
			return fmt.Errorf("got %v", g.Interface())
		}
		// Scatter with default counts and a synthesized receive type.
		data := frame.Frame{}
		if c.Rank() == 1 {
			data = g
		}
		s, err := Scatter(ctx, c, data, 1, nil)
		if err != nil {
			return err
		}
		want := evenCounts(6, n)[c.Rank()]
		if s.Len() != want || s.ElemType() != g.ElemType() || s.RowSize() != 3 {
			return fmt.Errorf("rank %d: scattered %v, want %d rows", c.Rank(), s, want)
		}
		return nil
	})
}

func TestGatherLength(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for n := 1; n <= 6; n++ {
		counts := darraytest.Partition(r, 17, n)
		darraytest.Run(t, n, func(ctx context.Context, c *comm.Comm) error {
			local := frame.Make(typeOfInt64, counts[c.Rank()])
			g, err := Gather(ctx, c, local, c.Size()-1)
			if err != nil {
				return err
			}
			if c.Rank() == c.Size()-1 && g.Len() != 17 {
				return fmt.Errorf("gathered %d rows, want 17", g.Len())
			}
			return nil
		})
	}
}

func TestEvenCounts(t *testing.T) {
	if got, want := evenCounts(10, 4), []int{3, 3, 2, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := evenCounts(2, 3), []int{1, 1, 0}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func checkKinds(t *testing.T, errs []error, want Kind) {
	t.Helper()
	for i, err := range errs {
		if got := KindOf(err); got != want {
			t.Errorf("rank %d: got %v (%v), want %v", i, got, err, want)
		}
		if !errors.Is(errors.Invalid, err) && !errors.Is(errors.NotSupported, err) {
			t.Errorf("rank %d: unexpected error %v", i, err)
		}
	}
}

func TestGatherMismatch(t *testing.T) {
	for _, c := range []struct {
		name  string
		local func(rank int) frame.Frame
		kind  Kind
	}{
		{
			"type",
			func(rank int) frame.Frame {
				if rank == 1 {
					return frame.Of([]float32{1})
				}
				return frame.Of([]int64{1})
			},
			TypeMismatch,
		},
		{
			"shape",
			func(rank int) frame.Frame {
				if rank == 2 {
					return frame.Of([]int64{1, 2, 3}, 3)
				}
				return frame.Of([]int64{1, 2}, 2)
			},
			ShapeMismatch,
		},
		{
			"boxed",
			func(rank int) frame.Frame {
				if rank == 0 {
					return frame.Of([]string{"x"})
				}
				return frame.Of([]int64{1})
			},
			UnsupportedElementType,
		},
		{
			"invalid",
			func(rank int) frame.Frame {
				if rank == 1 {
					return frame.Frame{}
				}
				return frame.Of([]int64{1})
			},
			InvalidLocalInput,
		},
	} {
		c := c
		t.Run(c.name, func(t *testing.T) {
			errs := darraytest.RunErrors(t, 3, func(ctx context.Context, cm *comm.Comm) error {
				_, err := Gather(ctx, cm, c.local(cm.Rank()), 0)
				return err
			})
			checkKinds(t, errs, c.kind)
		})
	}
}

func TestScatterErrors(t *testing.T) {
	for _, c := range []struct {
		name   string
		data   func(rank int) frame.Frame
		counts []int
		kind   Kind
	}{
		{
			"counts length",
			func(rank int) frame.Frame { return frame.Of([]int64{1, 2, 3}) },
			[]int{3},
			CountMismatch,
		},
		{
			"counts sum",
			func(rank int) frame.Frame { return frame.Of([]int64{1, 2, 3}) },
			[]int{1, 1, 2},
			CountMismatch,
		},
		{
			"root invalid",
			func(rank int) frame.Frame { return frame.Frame{} },
			nil,
			InvalidLocalInput,
		},
		{
			"boxed",
			func(rank int) frame.Frame { return frame.Of([]string{"a", "b"}) },
			nil,
			UnsupportedElementType,
		},
		{
			"template",
			func(rank int) frame.Frame {
				if rank == 2 {
					return frame.Of([]float32{})
				}
				return frame.Of([]int64{1, 2, 3})
			},
			nil,
			TypeMismatch,
		},
	} {
		c := c
		t.Run(c.name, func(t *testing.T) {
			errs := darraytest.RunErrors(t, 3, func(ctx context.Context, cm *comm.Comm) error {
				_, err := Scatter(ctx, cm, c.data(cm.Rank()), 0, c.counts)
				return err
			})
			checkKinds(t, errs, c.kind)
		})
	}
}
