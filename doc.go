// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package clockenv is a container for the drivers and glue of a small
// clock and environment station: a DS1307 real time clock and an HDC1080
// temperature/humidity sensor sharing one I²C bus, shown on a monochrome
// display.
//
// The bus is owned by package i2cmgr; drivers only see its Port. See
// cmd/envclock for the bring-up sequence.
package clockenv
