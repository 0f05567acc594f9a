// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds1307 controls a Maxim DS1307 real-time clock over I²C.
//
// Register accessors block on the bus through an i2cmgr.Port. Refresh reads
// the whole date and time through the port's queue instead and stores the
// result into a shared snapshot.Slot, so a periodic tick never waits on the
// bus.
//
// # Register usage
//
// Registers 0x00-0x07 are the chip's clock and control registers. The
// battery backed RAM that follows is used for the UTC offset (0x08, 0x09) and
// a raw century byte (0x10). The day of week register counts 1 to 7 starting
// on Sunday; the API uses time.Weekday.
//
// # Year
//
// The year is always 2000 plus the BCD year register, both for Year and for
// DateTime. SetYear also stores year/100 in the century byte, which Century
// returns as is, but it is never folded into the year.
//
// Datasheet
//
//	https://www.analog.com/media/en/technical-documentation/data-sheets/DS1307.pdf
package ds1307
