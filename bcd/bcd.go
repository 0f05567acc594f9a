// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bcd converts between binary-coded decimal register bytes and
// integers.
//
// Neither direction validates its input. A nibble above 9 decodes to a value
// that looks plausible but is wrong, which is what the clock chips themselves
// do with such data.
package bcd

// Decode returns the value of a packed BCD byte: high nibble × 10 + low nibble.
func Decode(b byte) int {
	return int(b>>4)*10 + int(b&0x0f)
}

// Encode packs v, which must be in 0-99, as BCD.
func Encode(v int) byte {
	return byte(v/10)<<4 | byte(v%10)
}
