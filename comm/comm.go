// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package comm implements communicators: handles on a fixed group of
// ranks that run the same program and coordinate through collective
// operations. Collectives are layered on a Transport, which moves
// tagged byte messages between pairs of ranks.
//
// Every collective must be called by every rank of the communicator,
// in the same order. A rank that skips or reorders a call blocks its
// peers until their contexts are done.
package comm

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/darray/internal/defaultsize"
)

// All is the root argument that delivers the result of a collective
// to every rank.
const All = -1

// A Transport moves tagged byte messages between the ranks of a group.
// Messages sent from one rank to another with the same tag are
// received in the order in which they were sent.
type Transport interface {
	// Rank returns the index of this rank in the group.
	Rank() int
	// Size returns the number of ranks in the group.
	Size() int
	// Send delivers p to rank dst under the provided tag. Send must not
	// wait for the receiver, and the transport must not retain p after
	// Send returns.
	Send(ctx context.Context, dst int, tag uint64, p []byte) error
	// Recv returns the next message sent by rank src under the
	// provided tag, blocking until one is available or the context is
	// done.
	Recv(ctx context.Context, src int, tag uint64) ([]byte, error)
}

// Comm is a communicator over a Transport. A Comm is owned by a single
// rank and must not be used concurrently: the sequence of collectives
// issued through it defines how messages pair up across ranks.
type Comm struct {
	t          Transport
	seq        uint64
	maxMessage int
	trace      *Trace
	stats      stats
}

// An Option configures a Comm.
type Option func(*Comm)

// WithTrace records every collective issued through the Comm in the
// provided trace.
func WithTrace(trace *Trace) Option {
	return func(c *Comm) { c.trace = trace }
}

// MaxMessageSize limits the size of individual transport messages.
// Larger payloads are split into chunks. All ranks must use the same
// limit.
func MaxMessageSize(n int) Option {
	return func(c *Comm) { c.maxMessage = n }
}

// minMessage is the smallest usable message size: a length header
// plus at least one payload byte.
const minMessage = 16

// New returns a new communicator over transport t.
func New(t Transport, opts ...Option) *Comm {
	c := &Comm{t: t, maxMessage: defaultsize.MaxMessage}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxMessage < minMessage {
		c.maxMessage = minMessage
	}
	return c
}

// Rank returns this process's index in the communicator.
func (c *Comm) Rank() int { return c.t.Rank() }

// Size returns the number of ranks in the communicator.
func (c *Comm) Size() int { return c.t.Size() }

// String returns a short description of the communicator.
func (c *Comm) String() string {
	return fmt.Sprintf("comm[%d/%d]", c.Rank(), c.Size())
}

// Begin starts a new collective call and returns the tag under which
// its messages are exchanged.
func (c *Comm) begin(op string) uint64 {
	c.seq++
	c.stats.collectives.Add(1)
	if c.trace != nil {
		c.trace.record(c.Rank(), op)
	}
	log.Debug.Printf("%s: %s (seq %d)", c, op, c.seq)
	return c.seq
}

// Send sends p to rank dst, splitting it into chunks of at most
// c.maxMessage bytes. The first chunk carries the total length.
func (c *Comm) send(ctx context.Context, dst int, tag uint64, p []byte) error {
	first := c.maxMessage - 8
	if first > len(p) {
		first = len(p)
	}
	msg := make([]byte, 8+first)
	binary.LittleEndian.PutUint64(msg, uint64(len(p)))
	copy(msg[8:], p[:first])
	if err := c.sendMessage(ctx, dst, tag, msg); err != nil {
		return err
	}
	for off := first; off < len(p); off += c.maxMessage {
		end := off + c.maxMessage
		if end > len(p) {
			end = len(p)
		}
		if err := c.sendMessage(ctx, dst, tag, p[off:end]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Comm) sendMessage(ctx context.Context, dst int, tag uint64, p []byte) error {
	c.stats.messages.Add(1)
	c.stats.bytesSent.Add(int64(len(p)))
	return c.t.Send(ctx, dst, tag, p)
}

// Recv receives a payload sent by send.
func (c *Comm) recv(ctx context.Context, src int, tag uint64) ([]byte, error) {
	msg, err := c.t.Recv(ctx, src, tag)
	if err != nil {
		return nil, err
	}
	c.stats.bytesRecv.Add(int64(len(msg)))
	if len(msg) < 8 {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("%s: short message from rank %d", c, src))
	}
	n := int(binary.LittleEndian.Uint64(msg))
	switch {
	case n == len(msg)-8:
		return msg[8:], nil
	case n < len(msg)-8:
		return nil, errors.E(errors.Integrity, fmt.Sprintf("%s: message from rank %d overflows %d bytes", c, src, n))
	}
	p := make([]byte, 0, n)
	p = append(p, msg[8:]...)
	for len(p) < n {
		chunk, err := c.t.Recv(ctx, src, tag)
		if err != nil {
			return nil, err
		}
		c.stats.bytesRecv.Add(int64(len(chunk)))
		if len(p)+len(chunk) > n {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("%s: message from rank %d overflows %d bytes", c, src, n))
		}
		p = append(p, chunk...)
	}
	return p, nil
}

// recvInto receives a payload into p, which must be exactly the
// size of the payload.
func (c *Comm) recvInto(ctx context.Context, src int, tag uint64, p []byte) error {
	q, err := c.recv(ctx, src, tag)
	if err != nil {
		return err
	}
	if len(q) != len(p) {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: expected %d bytes from rank %d, got %d", c, len(p), src, len(q)))
	}
	copy(p, q)
	return nil
}

func (c *Comm) checkRank(op string, rank int, allowAll bool) error {
	if rank == All && allowAll {
		return nil
	}
	if rank < 0 || rank >= c.Size() {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: %s: invalid rank %d", c, op, rank))
	}
	return nil
}

func encode(v interface{}) ([]byte, error) {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(v); err != nil {
		return nil, errors.E(errors.Invalid, "gob encode", err)
	}
	return b.Bytes(), nil
}

func decode(p []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(v); err != nil {
		return errors.E(errors.Integrity, "gob decode", err)
	}
	return nil
}
