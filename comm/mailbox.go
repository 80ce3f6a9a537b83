// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"sync"
)

type mailboxKey struct {
	src int
	tag uint64
}

// A Mailbox holds the messages delivered to a rank until they are
// received. Messages are queued per (source, tag) pair in delivery
// order. Mailboxes are the receiving half of transports.
type Mailbox struct {
	mu     sync.Mutex
	waitc  chan struct{}
	queues map[mailboxKey][][]byte
}

// NewMailbox returns a new, empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{queues: make(map[mailboxKey][][]byte)}
}

// Put queues message p from rank src under the provided tag. The
// mailbox takes ownership of p.
func (m *Mailbox) Put(src int, tag uint64, p []byte) {
	m.mu.Lock()
	k := mailboxKey{src, tag}
	m.queues[k] = append(m.queues[k], p)
	if m.waitc != nil {
		close(m.waitc)
		m.waitc = nil
	}
	m.mu.Unlock()
}

// Get returns the next message from rank src under the provided tag,
// waiting for one to be delivered. Get returns the context's error if
// it is done before a message arrives.
func (m *Mailbox) Get(ctx context.Context, src int, tag uint64) ([]byte, error) {
	k := mailboxKey{src, tag}
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if q := m.queues[k]; len(q) > 0 {
			p := q[0]
			q[0] = nil
			if len(q) == 1 {
				delete(m.queues, k)
			} else {
				m.queues[k] = q[1:]
			}
			return p, nil
		}
		if err := m.wait(ctx); err != nil {
			return nil, err
		}
	}
}

// Len returns the number of undelivered messages in the mailbox.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, q := range m.queues {
		n += len(q)
	}
	return n
}

// Wait returns after the next call to Put, or when the context is
// done. m.mu must be held.
func (m *Mailbox) wait(ctx context.Context) error {
	if m.waitc == nil {
		m.waitc = make(chan struct{})
	}
	waitc := m.waitc
	m.mu.Unlock()
	var err error
	select {
	case <-waitc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	m.mu.Lock()
	return err
}
