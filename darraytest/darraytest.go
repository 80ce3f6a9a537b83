// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package darraytest provides utilities for testing collective code.
// The utilities here are strictly intended for unit testing.
package darraytest

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/grailbio/darray/comm"
)

// Timeout bounds the running time of a test program, so that ranks
// that issue diverging collectives fail the test instead of hanging
// it.
var Timeout = time.Minute

// Run runs fn on n in-process ranks. Errors returned by any rank are
// reported as fatal to the provided t instance, as is any divergence
// in the sequence of collectives issued by the ranks.
func Run(t *testing.T, n int, fn func(ctx context.Context, c *comm.Comm) error) {
	t.Helper()
	errs := RunErrors(t, n, fn)
	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", i, err)
		}
	}
}

// RunErrors runs fn on n in-process ranks and returns the error
// returned by each rank. Divergence in the sequence of collectives
// issued by the ranks is reported as fatal to the provided t instance.
func RunErrors(t *testing.T, n int, fn func(ctx context.Context, c *comm.Comm) error) []error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	trace := comm.NewTrace()
	errs := comm.RunAll(ctx, n, fn, comm.WithTrace(trace))
	if err := trace.Check(); err != nil {
		t.Fatal(err)
	}
	return errs
}

// Partition returns a random partition of total rows among n ranks,
// including empty ranks.
func Partition(r *rand.Rand, total, n int) []int {
	counts := make([]int, n)
	for i := 0; i < total; i++ {
		counts[r.Intn(n)]++
	}
	// Leave some ranks empty.
	if n > 2 && r.Intn(2) == 0 {
		k := r.Intn(n)
		counts[(k+1)%n] += counts[k]
		counts[k] = 0
	}
	return counts
}

// Split returns the rows of a slice held by each rank under the
// provided partition.
func Split(counts []int) [][2]int {
	ranges := make([][2]int, len(counts))
	var off int
	for i, n := range counts {
		ranges[i] = [2]int{off, off + n}
		off += n
	}
	return ranges
}
