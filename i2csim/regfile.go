// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2csim

import "sync"

// RegisterFile simulates the common byte register chip layout: the first byte
// written sets the register pointer, further bytes are stored from there on,
// and reads return bytes from the pointer on. The pointer auto-increments and
// wraps at the end of the file.
type RegisterFile struct {
	mu   sync.Mutex
	regs []byte
	ptr  int
}

// NewRegisterFile returns a zeroed register file of size bytes.
func NewRegisterFile(size int) *RegisterFile {
	return &RegisterFile{regs: make([]byte, size)}
}

// Tx implements Device.
func (f *RegisterFile) Tx(w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(w) > 0 {
		f.ptr = int(w[0]) % len(f.regs)
		for _, b := range w[1:] {
			f.regs[f.ptr] = b
			f.advance()
		}
	}
	for i := range r {
		r[i] = f.regs[f.ptr]
		f.advance()
	}
	return nil
}

func (f *RegisterFile) advance() {
	f.ptr = (f.ptr + 1) % len(f.regs)
}

// Reg returns the content of register i.
func (f *RegisterFile) Reg(i int) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[i]
}

// SetReg overwrites register i, as the chip itself would.
func (f *RegisterFile) SetReg(i int, v byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[i] = v
}
