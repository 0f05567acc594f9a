// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2cmgr

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

func TestSharedBus(t *testing.T) {
	pb := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x3c, W: []byte{0x00, 0xae}},
			{Addr: 0x3c, W: []byte{0x00}, R: []byte{0x43}},
			{Addr: 0x3c, R: []byte{0x01, 0x02}},
		},
		DontPanic: true,
	}
	m := New(pb, nil)
	defer m.Halt()
	d := &i2c.Dev{Bus: m.Bus(), Addr: 0x3c}
	if _, err := d.Write([]byte{0x00, 0xae}); err != nil {
		t.Fatal(err)
	}
	r := make([]byte, 1)
	if err := d.Tx([]byte{0x00}, r); err != nil {
		t.Fatal(err)
	}
	r2 := make([]byte, 2)
	if err := d.Tx(nil, r2); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x43, 0x01, 0x02}, append(r, r2...)); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}
	if err := m.Bus().SetSpeed(400 * physic.KiloHertz); err != nil {
		t.Error(err)
	}
	if s := m.Bus().String(); s != m.String() {
		t.Errorf("String() = %q", s)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestSharedBusClosed(t *testing.T) {
	m := New(&i2ctest.Playback{DontPanic: true}, nil)
	_ = m.Halt()
	if err := m.Bus().Tx(0x3c, []byte{0}, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Tx() returned %v", err)
	}
	if err := m.Bus().SetSpeed(physic.KiloHertz); !errors.Is(err, ErrClosed) {
		t.Errorf("SetSpeed() returned %v", err)
	}
}
