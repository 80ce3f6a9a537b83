// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/darray/comm"
	"github.com/grailbio/darray/darraytest"
	"github.com/grailbio/darray/frame"
)

func TestNew(t *testing.T) {
	locals := [][]float64{{1, 2, 3, 4}, {}, {5, 6}}
	darraytest.Run(t, 3, func(ctx context.Context, c *comm.Comm) error {
		a, err := New(ctx, c, frame.Of(locals[c.Rank()], 2))
		if err != nil {
			return err
		}
		if got, want := a.CShape(), []int{3, 2}; !reflect.DeepEqual(got, want) {
			return fmt.Errorf("got cshape %v, want %v", got, want)
		}
		if got, want := a.COffset(), []int{0, 2, 2}[c.Rank()]; got != want {
			return fmt.Errorf("rank %d: got coffset %v, want %v", c.Rank(), got, want)
		}
		if got, want := a.DType().Name, "float64"; got != want {
			return fmt.Errorf("got dtype %v, want %v", got, want)
		}
		s, err := a.Slice(ctx, 1, 3)
		if err != nil {
			return err
		}
		want := [][]float64{{3, 4}, {}, {5, 6}}[c.Rank()]
		if !frame.Equal(s.Local(), frame.Of(want, 2)) {
			return fmt.Errorf("rank %d: slice: got %v, want %v", c.Rank(), s.Local().Interface(), want)
		}
		if got, want := s.CShape(), []int{2, 2}; !reflect.DeepEqual(got, want) {
			return fmt.Errorf("got cshape %v, want %v", got, want)
		}
		if _, err := a.Slice(ctx, 2, 5); err == nil {
			return fmt.Errorf("expected error")
		}
		return nil
	})
}

func TestEmpty(t *testing.T) {
	darraytest.Run(t, 4, func(ctx context.Context, c *comm.Comm) error {
		a, err := Empty(ctx, c, typeOfParticle, 10)
		if err != nil {
			return err
		}
		if got, want := a.Local().Len(), []int{3, 3, 2, 2}[c.Rank()]; got != want {
			return fmt.Errorf("rank %d: got %v rows, want %v", c.Rank(), got, want)
		}
		if got, want := a.COffset(), []int{0, 3, 6, 8}[c.Rank()]; got != want {
			return fmt.Errorf("rank %d: got offset %v, want %v", c.Rank(), got, want)
		}
		mass, err := a.Field(ctx, "Mass")
		if err != nil {
			return err
		}
		if got, want := mass.DType().Name, "float64"; got != want {
			return fmt.Errorf("got %v, want %v", got, want)
		}
		if _, err := a.Field(ctx, "Spin"); KindOf(err) != TypeMismatch {
			return fmt.Errorf("unexpected error %v", err)
		}
		return nil
	})
}

func TestEmptyInvalidShape(t *testing.T) {
	for _, cshape := range [][]int{{-3}, {4, -1}, {10, 0}, {}} {
		cshape := cshape
		errs := darraytest.RunErrors(t, 2, func(ctx context.Context, c *comm.Comm) error {
			_, err := Empty(ctx, c, typeOfInt64, cshape...)
			return err
		})
		for i, err := range errs {
			if !errors.Is(errors.Invalid, err) {
				t.Errorf("%v: rank %d: unexpected error %v", cshape, i, err)
			}
		}
	}
}

func TestNewMismatch(t *testing.T) {
	errs := darraytest.RunErrors(t, 4, func(ctx context.Context, c *comm.Comm) error {
		local := frame.Of([]int64{1})
		if c.Rank() == 3 {
			local = frame.Of([]uint64{1})
		}
		_, err := New(ctx, c, local)
		return err
	})
	checkKinds(t, errs, TypeMismatch)
}
