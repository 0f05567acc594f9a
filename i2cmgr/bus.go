// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2cmgr

import (
	"context"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Bus returns an i2c.Bus whose every Tx runs as one Perform on m. Use it to
// hand the shared bus to drivers written against periph's i2c.Bus, like the
// ssd1306 display driver, so their traffic is serialized with everyone
// else's.
func (m *Manager) Bus() i2c.Bus {
	return &sharedBus{m: m}
}

type sharedBus struct {
	m *Manager
}

// Tx implements i2c.Bus. A write followed by a read is a repeated start.
func (s *sharedBus) Tx(addr uint16, w, r []byte) error {
	var t []Transfer
	switch {
	case len(w) != 0 && len(r) != 0:
		t = []Transfer{WriteNoStop(addr, w), Read(addr, r)}
	case len(r) != 0:
		t = []Transfer{Read(addr, r)}
	default:
		t = []Transfer{Write(addr, w)}
	}
	return s.m.Perform(context.Background(), t...)
}

// SetSpeed implements i2c.Bus. It waits for the bus to be idle.
func (s *sharedBus) SetSpeed(f physic.Frequency) error {
	if s.m.isClosed() {
		return ErrClosed
	}
	s.m.token <- struct{}{}
	defer func() { <-s.m.token }()
	return s.m.bus.SetSpeed(f)
}

func (s *sharedBus) String() string {
	return s.m.String()
}

var _ i2c.Bus = &sharedBus{}
