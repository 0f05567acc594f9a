// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2cmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
)

// Port is what device drivers need from the bus: a blocking and a queued way
// to run a transaction.
type Port interface {
	// Perform runs all transfers as one uninterrupted bus operation and
	// returns once the last one completed. Failures are *BusError.
	Perform(ctx context.Context, transfers ...Transfer) error
	// Schedule queues transfers and returns immediately. done, if not nil, is
	// called exactly once from the bus worker when the transaction finished.
	// The transfer buffers belong to the transaction until then.
	Schedule(transfers []Transfer, done Completion) (*Pending, error)
}

// Opts holds the configuration options for the manager.
type Opts struct {
	// QueueSize is the number of transactions Schedule accepts before it
	// returns ErrQueueFull. Default is 50.
	QueueSize int
	// Timeout bounds how long Perform waits to obtain the bus. 0 means wait
	// as long as the context allows. Default is 1s.
	Timeout time.Duration
	// Logger receives debug output of failed transactions. Default is
	// slog.Default().
	Logger *slog.Logger
}

// DefaultOpts holds the default configuration options for the manager.
var DefaultOpts = Opts{
	QueueSize: 50,
	Timeout:   time.Second,
}

// Manager owns an i2c.Bus and runs transactions on it one at a time.
type Manager struct {
	bus  i2c.Bus
	opts Opts
	log  *slog.Logger

	// token is held for the whole duration of a transaction.
	token chan struct{}
	queue chan *job
	stop  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type job struct {
	transfers []Transfer
	done      Completion
	p         *Pending
}

// New returns a Manager driving b and starts its worker goroutine. Call Halt
// to stop it. The Opts can be nil.
func New(b i2c.Bus, opts *Opts) *Manager {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultOpts.QueueSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	m := &Manager{
		bus:   b,
		opts:  o,
		log:   o.Logger.With("bus", b.String()),
		token: make(chan struct{}, 1),
		queue: make(chan *job, o.QueueSize),
		stop:  make(chan struct{}),
	}
	m.wg.Add(1)
	go m.loop()
	return m
}

// Perform implements Port.
func (m *Manager) Perform(ctx context.Context, transfers ...Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	if err := validate(transfers); err != nil {
		return err
	}
	if m.isClosed() {
		return ErrClosed
	}
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}
	select {
	case m.token <- struct{}{}:
	case <-ctx.Done():
		return &BusError{Addr: transfers[0].Addr, Op: transfers[0].Op, Err: ctx.Err()}
	}
	defer func() { <-m.token }()
	return m.run(transfers)
}

// Schedule implements Port.
func (m *Manager) Schedule(transfers []Transfer, done Completion) (*Pending, error) {
	if err := validate(transfers); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	j := &job{transfers: transfers, done: done, p: newPending()}
	select {
	case m.queue <- j:
		return j.p, nil
	default:
		return nil, ErrQueueFull
	}
}

// Halt stops the worker. Transactions still queued complete with ErrClosed.
// Implements conn.Resource.
func (m *Manager) Halt() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()
	m.wg.Wait()
	return nil
}

func (m *Manager) String() string {
	return fmt.Sprintf("i2cmgr(%s)", m.bus)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) loop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			m.drain()
			return
		case j := <-m.queue:
			m.token <- struct{}{}
			err := m.run(j.transfers)
			<-m.token
			m.finish(j, err)
		}
	}
}

func (m *Manager) drain() {
	for {
		select {
		case j := <-m.queue:
			m.finish(j, ErrClosed)
		default:
			return
		}
	}
}

func (m *Manager) finish(j *job, err error) {
	if err != nil {
		m.log.Debug("scheduled transaction failed", "err", err)
	}
	if j.done != nil {
		j.done(err)
	}
	j.p.complete(err)
}

// run issues the transfers. The caller holds the token.
func (m *Manager) run(transfers []Transfer) error {
	for i := 0; i < len(transfers); i++ {
		t := &transfers[i]
		if t.Op == OpRead {
			if err := m.bus.Tx(t.Addr, nil, t.Buf); err != nil {
				return &BusError{Addr: t.Addr, Op: OpRead, Err: err}
			}
			continue
		}
		if t.NoStop && i+1 < len(transfers) {
			if next := &transfers[i+1]; next.Op == OpRead && next.Addr == t.Addr {
				if err := m.bus.Tx(t.Addr, t.Buf, next.Buf); err != nil {
					return &BusError{Addr: t.Addr, Op: OpRead, Err: err}
				}
				i++
				continue
			}
		}
		if err := m.bus.Tx(t.Addr, t.Buf, nil); err != nil {
			return &BusError{Addr: t.Addr, Op: OpWrite, Err: err}
		}
	}
	return nil
}

var _ conn.Resource = &Manager{}
var _ Port = &Manager{}
