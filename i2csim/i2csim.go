// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package i2csim is a stateful stand-in for an I²C bus with chips attached,
// meant for tests.
//
// Unlike i2ctest.Playback, which replays a fixed script, the simulated chips
// keep register contents between transactions so that a value written can be
// read back. Faults can be injected and every Tx is logged.
package i2csim

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

// ErrNACK is returned for a Tx to an address where no chip is attached.
var ErrNACK = errors.New("i2csim: address not acknowledged")

// Device is a chip on the simulated bus. Tx receives the bytes written and
// fills r, like a combined repeated-start cycle.
type Device interface {
	Tx(w, r []byte) error
}

// Bus is a simulated I²C bus. The zero value is not usable, use New.
type Bus struct {
	// Latency is slept inside every Tx, which widens the window in which an
	// unserialized caller would overlap with another.
	Latency time.Duration

	mu     sync.Mutex
	devs   map[uint16]Device
	faults []error
	ops    []i2ctest.IO

	inflight atomic.Int32
	overlaps atomic.Int32
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{devs: map[uint16]Device{}}
}

// Attach places d at addr.
func (b *Bus) Attach(addr uint16, d Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devs[addr] = d
}

// InjectFault makes the next len(errs) Tx calls return the given errors in
// order, without reaching the chip. A nil entry lets that call through.
func (b *Bus) InjectFault(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults = append(b.faults, errs...)
}

// Ops returns a copy of the Tx log. R holds what was returned to the caller.
func (b *Bus) Ops() []i2ctest.IO {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]i2ctest.IO(nil), b.ops...)
}

// ResetOps clears the Tx log.
func (b *Bus) ResetOps() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = nil
}

// Overlaps is the number of Tx calls that started while another was still
// running.
func (b *Bus) Overlaps() int {
	return int(b.overlaps.Load())
}

// Tx implements i2c.Bus.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if b.inflight.Add(1) > 1 {
		b.overlaps.Add(1)
	}
	defer b.inflight.Add(-1)
	if b.Latency > 0 {
		time.Sleep(b.Latency)
	}

	b.mu.Lock()
	var fault error
	if len(b.faults) > 0 {
		fault = b.faults[0]
		b.faults = b.faults[1:]
	}
	d, ok := b.devs[addr]
	b.mu.Unlock()

	err := fault
	if err == nil {
		if !ok {
			err = ErrNACK
		} else {
			err = d.Tx(w, r)
		}
	}

	io := i2ctest.IO{Addr: addr, W: append([]byte(nil), w...)}
	if err == nil && len(r) > 0 {
		io.R = append([]byte(nil), r...)
	}
	b.mu.Lock()
	b.ops = append(b.ops, io)
	b.mu.Unlock()
	return err
}

// SetSpeed implements i2c.Bus.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	return nil
}

func (b *Bus) String() string {
	return "i2csim"
}

// Close implements i2c.BusCloser.
func (b *Bus) Close() error {
	return nil
}

var _ i2c.BusCloser = &Bus{}
