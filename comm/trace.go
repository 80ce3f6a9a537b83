// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
)

// A Trace records the sequence of collectives issued by each rank of
// a group. Traces are used to verify that every rank issued the same
// collectives in the same order.
type Trace struct {
	mu    sync.Mutex
	calls map[int][]string
}

// NewTrace returns a new, empty trace.
func NewTrace() *Trace {
	return &Trace{calls: make(map[int][]string)}
}

func (t *Trace) record(rank int, call string) {
	t.mu.Lock()
	t.calls[rank] = append(t.calls[rank], call)
	t.mu.Unlock()
}

// Calls returns the collectives issued by the provided rank.
func (t *Trace) Calls(rank int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls[rank]...)
}

// Ranks returns the ranks that have issued at least one collective,
// in increasing order.
func (t *Trace) Ranks() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	ranks := make([]int, 0, len(t.calls))
	for rank := range t.calls {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)
	return ranks
}

// Check returns an error describing the first point at which the
// collectives issued by some rank diverge from those of the lowest
// traced rank.
func (t *Trace) Check() error {
	ranks := t.Ranks()
	if len(ranks) == 0 {
		return nil
	}
	want := t.Calls(ranks[0])
	for _, rank := range ranks[1:] {
		got := t.Calls(rank)
		for i := 0; i < len(got) || i < len(want); i++ {
			switch {
			case i >= len(want):
				return errors.E(errors.Invalid, fmt.Sprintf("rank %d issued extra collective %d: %s", rank, i, got[i]))
			case i >= len(got):
				return errors.E(errors.Invalid, fmt.Sprintf("rank %d is missing collective %d: %s", rank, i, want[i]))
			case got[i] != want[i]:
				return errors.E(errors.Invalid, fmt.Sprintf("rank %d issued %s as collective %d; rank %d issued %s", rank, got[i], i, ranks[0], want[i]))
			}
		}
	}
	return nil
}
