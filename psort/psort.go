// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package psort implements a distributed, stable sample sort of rows
// keyed by unsigned integers. Each rank sorts its rows locally, the
// ranks agree on splitters drawn from a sample of every rank's keys,
// rows are exchanged so that rank i holds the ith key range, and the
// sorted runs received by each rank are merged. A final exchange
// redistributes the globally sorted rows to the requested local
// lengths.
package psort

import (
	"container/heap"
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/darray/comm"
	"github.com/grailbio/darray/frame"
	"github.com/grailbio/darray/internal/defaultsize"
)

var typeOfUint64 = reflect.TypeOf(uint64(0))

// An item identifies a row during the sort. Ties between equal keys
// are broken by the row's global position before the sort, which
// makes the sort stable.
type item struct {
	Key, Tie uint64
}

func (a item) less(b item) bool {
	return a.Key < b.Key || a.Key == b.Key && a.Tie < b.Tie
}

type lengths struct {
	Len, Out int
}

// Sort sorts the rows of records across all ranks of c by the
// corresponding keys, which must have one entry per row. Rows with
// equal keys retain their global order. On return, this rank holds
// outLen rows of the globally sorted sequence, after the rows held by
// lower ranks; the sorted keys are returned alongside. The sum of
// outLen across ranks must equal the total number of rows; otherwise
// every rank returns an errors.Invalid error.
//
// The elements of records must be free of pointers.
func Sort(ctx context.Context, c *comm.Comm, keys []uint64, records frame.Frame, outLen int) ([]uint64, frame.Frame, error) {
	if len(keys) != records.Len() {
		return nil, frame.Frame{}, errors.E(errors.Invalid, fmt.Sprintf("psort.Sort: %d keys for %d rows", len(keys), records.Len()))
	}
	if !frame.CanBytes(records.ElemType()) {
		return nil, frame.Frame{}, errors.E(errors.NotSupported, fmt.Sprintf("psort.Sort: element type %v contains pointers", records.ElemType()))
	}
	var all []lengths
	if err := c.Allgather(ctx, lengths{len(keys), outLen}, &all); err != nil {
		return nil, frame.Frame{}, err
	}
	var offset, total, totalOut int
	for i, l := range all {
		if i < c.Rank() {
			offset += l.Len
		}
		total += l.Len
		totalOut += l.Out
	}
	if total != totalOut {
		return nil, frame.Frame{}, errors.E(errors.Invalid,
			fmt.Sprintf("psort.Sort: requested %d output rows for %d input rows", totalOut, total))
	}
	for _, l := range all {
		if l.Out < 0 {
			return nil, frame.Frame{}, errors.E(errors.Invalid, fmt.Sprintf("psort.Sort: negative output length %d", l.Out))
		}
	}

	items := make([]item, len(keys))
	for i, k := range keys {
		items[i] = item{k, uint64(offset + i)}
	}
	perm := make([]int, len(items))
	for i := range perm {
		perm[i] = i
	}
	sort.Slice(perm, func(i, j int) bool { return items[perm[i]].less(items[perm[j]]) })
	sorted := make([]item, len(items))
	for i, j := range perm {
		sorted[i] = items[j]
	}
	records = records.Take(perm)

	splitters, err := chooseSplitters(ctx, c, sorted)
	if err != nil {
		return nil, frame.Frame{}, err
	}
	bounds := make([]int, c.Size()+1)
	for j, s := range splitters {
		bounds[j+1] = sort.Search(len(sorted), func(i int) bool { return !sorted[i].less(s) })
	}
	bounds[c.Size()] = len(sorted)

	send := make([][]byte, c.Size())
	for j := range send {
		send[j] = pack(sorted[bounds[j]:bounds[j+1]], records.Slice(bounds[j], bounds[j+1]))
	}
	recv, err := c.Alltoallv(ctx, send)
	if err != nil {
		return nil, frame.Frame{}, err
	}
	runs := make([]*run, len(recv))
	parts := make([]frame.Frame, len(recv))
	var base int
	for i, p := range recv {
		its, part, err := unpack(p, records)
		if err != nil {
			return nil, frame.Frame{}, err
		}
		runs[i] = &run{items: its, base: base}
		parts[i] = part
		base += len(its)
	}
	received := frame.Concat(records.ElemType(), records.Trailing(), parts...)
	merged, order := merge(runs)
	log.Debug.Printf("%s: psort: merged %d rows from %d runs", c, len(merged), len(runs))

	return rebalance(ctx, c, merged, received.Take(order), outLen)
}

// ChooseSplitters draws a regular sample of each rank's sorted items,
// gathers the samples on every rank, and returns c.Size()-1 splitters.
// Rank j receives the items in [splitters[j-1], splitters[j]).
func chooseSplitters(ctx context.Context, c *comm.Comm, sorted []item) ([]item, error) {
	n := defaultsize.SortOversample
	if n > len(sorted) {
		n = len(sorted)
	}
	sample := make([]item, n)
	for i := range sample {
		sample[i] = sorted[i*len(sorted)/n]
	}
	var sets []sampleSet
	if err := c.Allgather(ctx, sampleSet{sample}, &sets); err != nil {
		return nil, err
	}
	var all []item
	for _, s := range sets {
		all = append(all, s.Items...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].less(all[j]) })
	splitters := make([]item, c.Size()-1)
	for j := range splitters {
		if len(all) == 0 {
			splitters[j] = item{^uint64(0), ^uint64(0)}
			continue
		}
		splitters[j] = all[(j+1)*len(all)/c.Size()]
	}
	return splitters, nil
}

// Rebalance redistributes the globally sorted rows so that this rank
// holds outLen of them.
func rebalance(ctx context.Context, c *comm.Comm, items []item, records frame.Frame, outLen int) ([]uint64, frame.Frame, error) {
	var all []lengths
	if err := c.Allgather(ctx, lengths{len(items), outLen}, &all); err != nil {
		return nil, frame.Frame{}, err
	}
	var start, outStart int
	for i := 0; i < c.Rank(); i++ {
		start += all[i].Len
	}
	send := make([][]byte, c.Size())
	for j, l := range all {
		lo, hi := outStart-start, outStart+l.Out-start
		outStart += l.Out
		if lo < 0 {
			lo = 0
		}
		if hi > len(items) {
			hi = len(items)
		}
		if lo >= hi {
			send[j] = pack(nil, records.Slice(0, 0))
			continue
		}
		send[j] = pack(items[lo:hi], records.Slice(lo, hi))
	}
	recv, err := c.Alltoallv(ctx, send)
	if err != nil {
		return nil, frame.Frame{}, err
	}
	var (
		keys  = make([]uint64, 0, outLen)
		parts = make([]frame.Frame, len(recv))
	)
	for i, p := range recv {
		its, part, err := unpack(p, records)
		if err != nil {
			return nil, frame.Frame{}, err
		}
		for _, it := range its {
			keys = append(keys, it.Key)
		}
		parts[i] = part
	}
	out := frame.Concat(records.ElemType(), records.Trailing(), parts...)
	if out.Len() != outLen {
		return nil, frame.Frame{}, errors.E(errors.Integrity, fmt.Sprintf("psort.Sort: received %d rows, expected %d", out.Len(), outLen))
	}
	return keys, out, nil
}

type sampleSet struct {
	Items []item
}

// Pack encodes items and their rows as raw bytes: the keys, then the
// ties, then the rows.
func pack(items []item, rows frame.Frame) []byte {
	keys := make([]uint64, len(items))
	ties := make([]uint64, len(items))
	for i, it := range items {
		keys[i], ties[i] = it.Key, it.Tie
	}
	var p []byte
	p = append(p, frame.Of(keys).Bytes()...)
	p = append(p, frame.Of(ties).Bytes()...)
	p = append(p, rows.Bytes()...)
	return p
}

// Unpack decodes a buffer written by pack. The rows have the element
// type and trailing shape of proto.
func unpack(p []byte, proto frame.Frame) ([]item, frame.Frame, error) {
	rowBytes := proto.RowSize() * int(proto.ElemType().Size())
	width := 16 + rowBytes
	if len(p)%width != 0 {
		return nil, frame.Frame{}, errors.E(errors.Integrity, fmt.Sprintf("psort: buffer of %d bytes does not hold rows of %d bytes", len(p), width))
	}
	n := len(p) / width
	keys := frame.FromBytes(typeOfUint64, p[:8*n]).Interface().([]uint64)
	ties := frame.FromBytes(typeOfUint64, p[8*n:16*n]).Interface().([]uint64)
	items := make([]item, n)
	for i := range items {
		items[i] = item{keys[i], ties[i]}
	}
	return items, frame.FromBytes(proto.ElemType(), p[16*n:], proto.Trailing()...), nil
}

// A run is a sorted sequence of items, positioned at off.
type run struct {
	items []item
	// Base is the row index of the run's first item among all
	// received rows.
	base int
	off  int
}

func (r *run) head() item { return r.items[r.off] }

// runHeap implements a heap of runs ordered by their current items.
type runHeap []*run

func (h runHeap) Len() int            { return len(h) }
func (h runHeap) Less(i, j int) bool  { return h[i].head().less(h[j].head()) }
func (h runHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x interface{}) { *h = append(*h, x.(*run)) }

func (h *runHeap) Pop() interface{} {
	n := len(*h)
	elem := (*h)[n-1]
	*h = (*h)[:n-1]
	return elem
}

// Merge merges sorted runs, returning the merged items and, for each,
// its row index among all received rows.
func merge(runs []*run) ([]item, []int) {
	var (
		h runHeap
		n int
	)
	for _, r := range runs {
		if len(r.items) > 0 {
			h = append(h, r)
			n += len(r.items)
		}
	}
	heap.Init(&h)
	items := make([]item, 0, n)
	order := make([]int, 0, n)
	for len(h) > 0 {
		r := h[0]
		items = append(items, r.head())
		order = append(order, r.base+r.off)
		r.off++
		if r.off == len(r.items) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return items, order
}
