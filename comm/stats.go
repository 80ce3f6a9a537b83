// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Values is a snapshot of a communicator's counters.
type Values map[string]int64

// String returns an abbreviated string with the values in this
// snapshot sorted by key.
func (v Values) String() string {
	var keys []string
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for i, key := range keys {
		keys[i] = fmt.Sprintf("%s:%d", key, v[key])
	}
	return strings.Join(keys, " ")
}

// Add adds the values in w to v.
func (v Values) Add(w Values) {
	for k, n := range w {
		v[k] += n
	}
}

// A counter is an integer counter that can be atomically incremented.
type counter struct {
	val int64
}

func (c *counter) Add(delta int64) { atomic.AddInt64(&c.val, delta) }

func (c *counter) Get() int64 { return atomic.LoadInt64(&c.val) }

type stats struct {
	collectives, messages, bytesSent, bytesRecv counter
}

// Stats returns a snapshot of the communicator's counters: the
// number of collectives issued, and the messages and bytes moved by
// this rank.
func (c *Comm) Stats() Values {
	return Values{
		"collectives": c.stats.collectives.Get(),
		"messages":    c.stats.messages.Get(),
		"bytes_sent":  c.stats.bytesSent.Get(),
		"bytes_recv":  c.stats.bytesRecv.Get(),
	}
}
