// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package snapshot provides the shared output slots that asynchronous driver
// completions write into and the display path reads from.
//
// A completion is the only writer of a slot. Readers on other goroutines
// always get a whole value, never a half updated one.
package snapshot

import (
	"sync"
	"time"
)

// Slot holds the latest value of T and when it was stored. The zero value is
// an empty slot ready for use.
type Slot[T any] struct {
	mu      sync.RWMutex
	v       T
	updated time.Time
	n       uint64
}

// Store replaces the held value.
func (s *Slot[T]) Store(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = v
	s.updated = time.Now()
	s.n++
}

// Load returns the held value, the zero value of T if nothing was stored yet.
func (s *Slot[T]) Load() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Snapshot returns the held value together with the time it was stored and
// the number of stores so far. ok is false if the slot was never written.
func (s *Slot[T]) Snapshot() (v T, updated time.Time, n uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v, s.updated, s.n, s.n > 0
}
