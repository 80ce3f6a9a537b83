// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package machinecomm runs communicator programs across bigmachine
// machines. Each rank runs on its own machine; messages between ranks
// are delivered by RPC to a service installed on every machine.
//
// Programs must be registered (by Register) in every binary that
// participates, typically from an init function, since machines run
// the program by name.
package machinecomm

import (
	"context"
	"crypto/rand"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"runtime"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/darray/comm"
	"golang.org/x/sync/errgroup"
)

// A Program is the per-rank body of a distributed computation.
type Program func(ctx context.Context, c *comm.Comm) error

var (
	mu       sync.Mutex
	programs = make(map[string]registration)
)

type registration struct {
	program  Program
	location string
}

// Register registers program under the provided name. Register
// panics if the name is already registered.
func Register(name string, program Program) {
	_, file, line, _ := runtime.Caller(1)
	location := fmt.Sprintf("%s:%d", file, line)
	mu.Lock()
	defer mu.Unlock()
	if r, ok := programs[name]; ok {
		log.Panicf("machinecomm.Register: program %q already registered at %s", name, r.location)
	}
	programs[name] = registration{program, location}
}

func lookup(name string) (Program, bool) {
	mu.Lock()
	defer mu.Unlock()
	r, ok := programs[name]
	return r.program, ok
}

func init() {
	gob.Register(&service{})
}

// ServiceName is the name under which the communicator service is
// installed on machines.
const ServiceName = "Darray"

// Service returns the parameter that installs the communicator
// service on machines started by bigmachine.
func Service() bigmachine.Param {
	return bigmachine.Services{ServiceName: &service{}}
}

// Run starts n machines on b and runs the named program on them,
// one rank per machine. Run returns the communicator statistics of
// each rank, or the first error returned by any rank. If maxMessage
// is positive, it limits the size of the messages exchanged between
// ranks.
func Run(ctx context.Context, b *bigmachine.B, n int, name string, maxMessage int) ([]comm.Values, error) {
	if _, ok := lookup(name); !ok {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("machinecomm.Run: program %q not registered", name))
	}
	machines, err := b.Start(ctx, n, Service())
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, m := range machines {
			m.Cancel()
		}
	}()
	addrs := make([]string, len(machines))
	for i, m := range machines {
		<-m.Wait(bigmachine.Running)
		if err := m.Err(); err != nil {
			return nil, errors.E(fmt.Sprintf("machine %s failed to start", m.Addr), err)
		}
		addrs[i] = m.Addr
	}
	job, err := newJobID()
	if err != nil {
		return nil, err
	}
	log.Printf("machinecomm: running %s (job %s) on %d machines", name, job, n)
	var (
		g, gctx = errgroup.WithContext(ctx)
		stats   = make([]comm.Values, n)
	)
	for i, m := range machines {
		i, m := i, m
		g.Go(func() error {
			req := runRequest{
				Job:        job,
				Program:    name,
				Rank:       i,
				Addrs:      addrs,
				MaxMessage: maxMessage,
			}
			var reply runReply
			if err := m.Call(gctx, ServiceName+".Run", req, &reply); err != nil {
				return errors.E(fmt.Sprintf("rank %d (%s)", i, m.Addr), err)
			}
			stats[i] = reply.Stats
			return nil
		})
	}
	return stats, g.Wait()
}

func newJobID() (string, error) {
	var p [8]byte
	if _, err := rand.Read(p[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(p[:]), nil
}

type runRequest struct {
	Job        string
	Program    string
	Rank       int
	Addrs      []string
	MaxMessage int
}

type runReply struct {
	Stats comm.Values
}

type message struct {
	Job  string
	Src  int
	Tag  uint64
	Data []byte
}

// Service is the communicator service installed on every machine.
// It holds one mailbox per job.
type service struct {
	// Exported just satisfies gob's persnickety nature: we need at least
	// one exported field.
	Exported struct{}

	b *bigmachine.B

	mu    sync.Mutex
	boxes map[string]*comm.Mailbox
	// Done holds the jobs that have finished on this machine.
	done map[string]bool
}

func (s *service) Init(b *bigmachine.B) error {
	s.b = b
	s.boxes = make(map[string]*comm.Mailbox)
	s.done = make(map[string]bool)
	return nil
}

// Mailbox returns the mailbox for the provided job, creating it if
// needed: messages from fast peers may arrive before the job starts.
// Mailbox returns nil if the job has already finished.
func (s *service) mailbox(job string) *comm.Mailbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done[job] {
		return nil
	}
	m := s.boxes[job]
	if m == nil {
		m = comm.NewMailbox()
		s.boxes[job] = m
	}
	return m
}

// Finish releases the mailbox of a finished job. Messages delivered
// for it afterwards are dropped.
func (s *service) finish(job string) {
	s.mu.Lock()
	delete(s.boxes, job)
	s.done[job] = true
	s.mu.Unlock()
}

// Deliver queues a message in its job's mailbox.
func (s *service) Deliver(ctx context.Context, msg message, _ *struct{}) error {
	m := s.mailbox(msg.Job)
	if m == nil {
		log.Debug.Printf("machinecomm: dropping message for finished job %s from rank %d", msg.Job, msg.Src)
		return nil
	}
	m.Put(msg.Src, msg.Tag, msg.Data)
	return nil
}

// Run runs a rank of a registered program.
func (s *service) Run(ctx context.Context, req runRequest, reply *runReply) error {
	program, ok := lookup(req.Program)
	if !ok {
		return errors.E(errors.NotExist, fmt.Sprintf("program %q not registered", req.Program))
	}
	box := s.mailbox(req.Job)
	if box == nil {
		return errors.E(errors.Invalid, fmt.Sprintf("job %s already ran on this machine", req.Job))
	}
	t := &transport{
		svc:      s,
		job:      req.Job,
		rank:     req.Rank,
		addrs:    req.Addrs,
		box:      box,
		machines: make(map[int]*bigmachine.Machine),
	}
	defer s.finish(req.Job)
	var opts []comm.Option
	if req.MaxMessage > 0 {
		opts = append(opts, comm.MaxMessageSize(req.MaxMessage))
	}
	c := comm.New(t, opts...)
	err := program(ctx, c)
	reply.Stats = c.Stats()
	if err != nil {
		log.Error.Printf("%s: %s failed: %v", c, req.Program, err)
	}
	return err
}

// Transport is a comm.Transport that delivers messages through the
// communicator services of peer machines.
type transport struct {
	svc   *service
	job   string
	rank  int
	addrs []string
	box   *comm.Mailbox

	mu       sync.Mutex
	machines map[int]*bigmachine.Machine
}

func (t *transport) Rank() int { return t.rank }
func (t *transport) Size() int { return len(t.addrs) }

func (t *transport) Send(ctx context.Context, dst int, tag uint64, p []byte) error {
	if dst == t.rank {
		t.box.Put(dst, tag, append([]byte(nil), p...))
		return nil
	}
	m, err := t.dial(ctx, dst)
	if err != nil {
		return err
	}
	msg := message{Job: t.job, Src: t.rank, Tag: tag, Data: p}
	return m.Call(ctx, ServiceName+".Deliver", msg, nil)
}

func (t *transport) Recv(ctx context.Context, src int, tag uint64) ([]byte, error) {
	return t.box.Get(ctx, src, tag)
}

func (t *transport) dial(ctx context.Context, rank int) (*bigmachine.Machine, error) {
	if rank < 0 || rank >= len(t.addrs) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("send to invalid rank %d", rank))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if m := t.machines[rank]; m != nil {
		return m, nil
	}
	m, err := t.svc.b.Dial(ctx, t.addrs[rank])
	if err != nil {
		return nil, err
	}
	t.machines[rank] = m
	return m, nil
}
