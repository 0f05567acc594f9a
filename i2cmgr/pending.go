// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2cmgr

import (
	"context"
	"sync/atomic"
)

// Completion is called exactly once when a scheduled transaction finished.
// err is nil on success. It runs on the manager's worker goroutine and must
// not block.
type Completion func(err error)

// State is the lifecycle of a scheduled transaction.
type State uint32

const (
	StatePending State = iota
	StateCompleted
)

func (s State) String() string {
	if s == StateCompleted {
		return "completed"
	}
	return "pending"
}

// Pending tracks one scheduled transaction.
type Pending struct {
	done  chan struct{}
	state atomic.Uint32
	err   error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// complete records the result. It must be called once.
func (p *Pending) complete(err error) {
	p.err = err
	p.state.Store(uint32(StateCompleted))
	close(p.done)
}

// Done is closed after the transaction finished and its Completion returned.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// State reports whether the transaction finished.
func (p *Pending) State() State {
	return State(p.state.Load())
}

// Err returns the result of the transaction. It is only meaningful once Done
// is closed.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the transaction completed or ctx is done. It returns the
// transaction result, or ctx.Err() if it gave up first. The transaction is
// not cancelled in the latter case.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
