// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"
	"math"
	"reflect"

	"github.com/grailbio/darray/internal/defaultsize"
)

type extent struct {
	Min, Max []float64
}

// Bounds returns the global minimum and maximum of each column of a
// numeric array, where a column is a position within a row. The local
// rows are scanned in chunks. Columns of empty arrays have bounds
// +Inf and -Inf.
func (a *DistributedArray) Bounds(ctx context.Context) (min, max []float64, err error) {
	const op = "darray.Bounds"
	var get func(v reflect.Value) float64
	switch a.local.ElemType().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		get = func(v reflect.Value) float64 { return float64(v.Int()) }
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		get = func(v reflect.Value) float64 { return float64(v.Uint()) }
	case reflect.Float32, reflect.Float64:
		get = func(v reflect.Value) float64 { return v.Float() }
	default:
		return nil, nil, newError(op, UnsupportedElementType, "cannot bound elements of type %s", a.dtype)
	}
	r := a.local.RowSize()
	local := extent{Min: make([]float64, r), Max: make([]float64, r)}
	for j := range local.Min {
		local.Min[j], local.Max[j] = math.Inf(1), math.Inf(-1)
	}
	chunk := defaultsize.Chunk
	if chunk <= 0 {
		chunk = 1
	}
	for start := 0; start < a.local.Len(); start += chunk {
		end := start + chunk
		if end > a.local.Len() {
			end = a.local.Len()
		}
		rows := a.local.Slice(start, end)
		for i := 0; i < rows.NumElems(); i++ {
			x, j := get(rows.Elem(i)), i%r
			local.Min[j] = math.Min(local.Min[j], x)
			local.Max[j] = math.Max(local.Max[j], x)
		}
	}
	var all []extent
	if err := a.comm.Allgather(ctx, local, &all); err != nil {
		return nil, nil, err
	}
	min, max = local.Min, local.Max
	for _, e := range all {
		for j := range min {
			min[j] = math.Min(min[j], e.Min[j])
			max[j] = math.Max(max[j], e.Max[j])
		}
	}
	return min, max, nil
}
