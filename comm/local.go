// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/grailbio/base/errors"
	"golang.org/x/sync/errgroup"
)

type localTransport struct {
	rank  int
	boxes []*Mailbox
}

// NewLocal returns the transports of an in-process group of n ranks.
// Transport i is to be used by rank i.
func NewLocal(n int) []Transport {
	boxes := make([]*Mailbox, n)
	for i := range boxes {
		boxes[i] = NewMailbox()
	}
	ts := make([]Transport, n)
	for i := range ts {
		ts[i] = &localTransport{rank: i, boxes: boxes}
	}
	return ts
}

func (t *localTransport) Rank() int { return t.rank }
func (t *localTransport) Size() int { return len(t.boxes) }

func (t *localTransport) Send(ctx context.Context, dst int, tag uint64, p []byte) error {
	if dst < 0 || dst >= len(t.boxes) {
		return errors.E(errors.Invalid, fmt.Sprintf("send to invalid rank %d", dst))
	}
	t.boxes[dst].Put(t.rank, tag, append([]byte(nil), p...))
	return nil
}

func (t *localTransport) Recv(ctx context.Context, src int, tag uint64) ([]byte, error) {
	if src < 0 || src >= len(t.boxes) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("receive from invalid rank %d", src))
	}
	return t.boxes[t.rank].Get(ctx, src, tag)
}

// Run runs fn on n in-process ranks, each with its own communicator,
// and waits for all of them to return. The context passed to fn is
// canceled as soon as any rank fails, so that peers blocked in
// collectives are released. Run returns the error of the lowest
// failing rank, ignoring ranks that failed only because they were
// canceled.
func Run(ctx context.Context, n int, fn func(ctx context.Context, c *Comm) error, opts ...Option) error {
	_, err := run(ctx, n, fn, opts)
	return err
}

// RunAll is like Run, but returns the error returned by every rank.
func RunAll(ctx context.Context, n int, fn func(ctx context.Context, c *Comm) error, opts ...Option) []error {
	errs, _ := run(ctx, n, fn, opts)
	return errs
}

func run(ctx context.Context, n int, fn func(ctx context.Context, c *Comm) error, opts []Option) ([]error, error) {
	if n <= 0 {
		err := errors.E(errors.Invalid, fmt.Sprintf("comm.Run: invalid number of ranks %d", n))
		return []error{err}, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		g    errgroup.Group
		errs = make([]error, n)
	)
	for i, t := range NewLocal(n) {
		i, c := i, New(t, opts...)
		g.Go(func() (err error) {
			defer func() {
				if e := recover(); e != nil {
					err = errors.E(fmt.Sprintf("rank %d: panic while running: %v\n%s", i, e, string(debug.Stack())))
				}
				if err != nil {
					cancel()
				}
				errs[i] = err
			}()
			return fn(ctx, c)
		})
	}
	err := g.Wait()
	for _, e := range errs {
		if e != nil && e != context.Canceled {
			return errs, e
		}
	}
	return errs, err
}
