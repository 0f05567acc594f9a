// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package i2cmgr serializes every transaction on a shared, single master I²C
// bus.
//
// A transaction is an ordered list of Transfer steps. Two entry points run
// them:
//
//   - Perform blocks the caller until the last step completed or failed.
//   - Schedule queues the transaction and returns a Pending handle right
//     away. A single worker goroutine runs queued transactions one by one and
//     calls the completion exactly once, from that worker goroutine.
//
// Both paths take the same bus ownership token, so the steps of two
// transactions never interleave, whichever path submitted them. A write step
// flagged NoStop followed by a read from the same address is issued as one
// repeated-start bus cycle; this is the "set register pointer, then read"
// idiom register based chips depend on.
//
// Transport failures are reported as *BusError. Nothing is retried.
package i2cmgr
