// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2cmgr

import (
	"errors"
	"fmt"
)

// Op is the direction of a Transfer.
type Op uint8

const (
	OpWrite Op = iota
	OpRead
)

func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpRead:
		return "read"
	default:
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
}

// Transfer is one step of a transaction.
type Transfer struct {
	Addr uint16
	Op   Op
	// Buf holds the bytes to write, or receives the bytes read.
	Buf []byte
	// NoStop keeps the bus after a write so the following read from the same
	// address happens without another master getting in between.
	NoStop bool
}

// Write returns a write step that releases the bus when done.
func Write(addr uint16, b []byte) Transfer {
	return Transfer{Addr: addr, Op: OpWrite, Buf: b}
}

// WriteNoStop returns a write step that holds the bus for the next read.
func WriteNoStop(addr uint16, b []byte) Transfer {
	return Transfer{Addr: addr, Op: OpWrite, Buf: b, NoStop: true}
}

// Read returns a read step filling b.
func Read(addr uint16, b []byte) Transfer {
	return Transfer{Addr: addr, Op: OpRead, Buf: b}
}

// BusError is a transport level failure: the address or a data byte was not
// acknowledged, arbitration was lost, or the bus could not be obtained in
// time.
type BusError struct {
	Addr uint16
	Op   Op
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("i2cmgr: %s 0x%02x: %v", e.Op, e.Addr, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

var (
	// ErrQueueFull is returned by Schedule when the queue has no room left.
	ErrQueueFull = errors.New("i2cmgr: transaction queue full")
	// ErrClosed is returned once the manager was halted. Transactions still
	// queued at that point complete with it.
	ErrClosed = errors.New("i2cmgr: closed")

	errEmptyRead = errors.New("i2cmgr: read transfer without buffer")
)

func validate(transfers []Transfer) error {
	for i := range transfers {
		switch transfers[i].Op {
		case OpWrite:
		case OpRead:
			if len(transfers[i].Buf) == 0 {
				return errEmptyRead
			}
		default:
			return fmt.Errorf("i2cmgr: transfer %d: invalid %s", i, transfers[i].Op)
		}
	}
	return nil
}
