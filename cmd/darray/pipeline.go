// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/darray"
	"github.com/grailbio/darray/comm"
	"github.com/grailbio/darray/frame"
)

// Pipeline is the per-rank program run by the command.
func pipeline(ctx context.Context, c *comm.Comm) error {
	keys, err := loadKeys(ctx, c)
	if err != nil {
		return err
	}
	arr, err := darray.New(ctx, c, keys)
	if err != nil {
		return err
	}
	log.Debug.Printf("%s: %s", c, arr)
	before, err := arr.Checksum(ctx)
	if err != nil {
		return err
	}
	if err := arr.Sort(ctx, ""); err != nil {
		return err
	}
	after, err := arr.Checksum(ctx)
	if err != nil {
		return err
	}
	sorted, err := arr.IsSorted(ctx)
	if err != nil {
		return err
	}
	if !sorted || before != after {
		return errors.E(errors.Integrity, fmt.Sprintf("%s: bad sort: sorted=%v checksum %x, want %x", c, sorted, after, before))
	}
	labels, err := arr.UniqueLabels(ctx)
	if err != nil {
		return err
	}
	var last int64 = -1
	if l := labels.Local(); l.Len() > 0 {
		last = l.Elem(l.Len() - 1).Int()
	}
	nunique, err := c.AllreduceInt(ctx, last+1, comm.Max)
	if err != nil {
		return err
	}
	counts, err := arr.Bincount(ctx)
	if err != nil {
		return err
	}
	min, max, err := arr.Bounds(ctx)
	if err != nil {
		return err
	}
	bins, err := counts.Gather(ctx, 0)
	if err != nil {
		return err
	}
	log.Debug.Printf("%s: %s", c, c.Stats())
	if c.Rank() != 0 {
		return nil
	}
	log.Printf("%d keys, %d distinct, bounds [%v, %v], %d bins",
		arr.CShape()[0], nunique, min[0], max[0], bins.Len())
	top := *topFlag
	if top > bins.Len() {
		top = bins.Len()
	}
	log.Printf("first %d bins:\n%s", top, bins.Slice(0, top).TabString())
	return nil
}

// LoadKeys returns this rank's share of the keys: generated locally,
// or read by rank 0 from the input and scattered.
func loadKeys(ctx context.Context, c *comm.Comm) (frame.Frame, error) {
	if *inputFlag == "" {
		r := rand.New(rand.NewSource(*seedFlag + int64(c.Rank())))
		keys := make([]uint64, *rowsFlag)
		for i := range keys {
			keys[i] = uint64(r.Int63n(int64(*maxFlag)))
		}
		return frame.Of(keys), nil
	}
	var (
		data    frame.Frame
		readErr error
	)
	if c.Rank() == 0 {
		var keys []uint64
		keys, readErr = readKeys(ctx, *inputFlag)
		if readErr != nil {
			log.Error.Printf("%s: %v", *inputFlag, readErr)
		} else {
			data = frame.Of(keys)
		}
	}
	// A failed read leaves the root without data, which fails the
	// scatter on every rank.
	keys, err := darray.Scatter(ctx, c, data, 0, nil)
	if readErr != nil {
		return frame.Frame{}, readErr
	}
	return keys, err
}

func readKeys(ctx context.Context, path string) (keys []uint64, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(ctx); err == nil {
			err = cerr
		}
	}()
	scan := bufio.NewScanner(f.Reader(ctx))
	for lineno := 1; scan.Scan(); lineno++ {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		key, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("line %d", lineno), err)
		}
		keys = append(keys, key)
	}
	return keys, scan.Err()
}
