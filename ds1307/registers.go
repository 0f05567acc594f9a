// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds1307

import (
	"time"

	"github.com/GermanBionicSystems/clockenv/bcd"
	"github.com/GermanBionicSystems/clockenv/calendar"
)

// DefaultAddr is the fixed I²C address of the chip.
const DefaultAddr uint16 = 0x68

const (
	regSecond  byte = 0x00
	regMinute  byte = 0x01
	regHour    byte = 0x02
	regDow     byte = 0x03
	regDate    byte = 0x04
	regMonth   byte = 0x05
	regYear    byte = 0x06
	regControl byte = 0x07
	regUTCHour byte = 0x08
	regUTCMin  byte = 0x09
	regCentury byte = 0x10

	// Length of the contiguous second..year block.
	dateTimeLen = 7
)

// Rate is the square wave output frequency.
type Rate byte

const (
	Rate1Hz     Rate = 0b00
	Rate4096Hz  Rate = 0b01
	Rate8192Hz  Rate = 0b10
	Rate32768Hz Rate = 0b11
)

func (r Rate) String() string {
	switch r {
	case Rate1Hz:
		return "1Hz"
	case Rate4096Hz:
		return "4.096kHz"
	case Rate8192Hz:
		return "8.192kHz"
	default:
		return "32.768kHz"
	}
}

// secondsReg is register 0x00: bit 7 is the clock halt flag, bits 0-6 the
// BCD seconds.
type secondsReg byte

const clockHalt secondsReg = 1 << 7

func (s secondsReg) halted() bool {
	return s&clockHalt != 0
}

func (s secondsReg) seconds() int {
	return bcd.Decode(byte(s &^ clockHalt))
}

func (s secondsReg) withHalt(h bool) secondsReg {
	if h {
		return s | clockHalt
	}
	return s &^ clockHalt
}

func (s secondsReg) withSeconds(v int) secondsReg {
	return s&clockHalt | secondsReg(bcd.Encode(v))
}

// hoursReg is register 0x02. Bit 6 selects 12 hour mode, in which bit 5 is
// the PM flag. This driver always writes 24 hour mode.
type hoursReg byte

const (
	mode12h hoursReg = 1 << 6
	pm      hoursReg = 1 << 5
)

func (h hoursReg) hours() int {
	if h&mode12h == 0 {
		return bcd.Decode(byte(h & 0x3f))
	}
	v := bcd.Decode(byte(h&0x1f)) % 12
	if h&pm != 0 {
		v += 12
	}
	return v
}

func hours24(v int) hoursReg {
	return hoursReg(bcd.Encode(v))
}

// controlReg is register 0x07.
type controlReg byte

const (
	ctrlOut   controlReg = 1 << 7
	ctrlSQWE  controlReg = 1 << 4
	ctrlRSBit controlReg = 0b11
)

func (c controlReg) squareWave() bool {
	return c&ctrlSQWE != 0
}

func (c controlReg) withSquareWave(on bool) controlReg {
	if on {
		return c | ctrlSQWE
	}
	return c &^ ctrlSQWE
}

func (c controlReg) rate() Rate {
	return Rate(c & ctrlRSBit)
}

func (c controlReg) withRate(r Rate) controlReg {
	return c&^ctrlRSBit | controlReg(r)&ctrlRSBit
}

func (c controlReg) withOut(high bool) controlReg {
	if high {
		return c | ctrlOut
	}
	return c &^ ctrlOut
}

func decodeMinute(b byte) int {
	return bcd.Decode(b & 0x7f)
}

func decodeDate(b byte) int {
	return bcd.Decode(b & 0x3f)
}

func decodeMonth(b byte) time.Month {
	return time.Month(bcd.Decode(b & 0x1f))
}

func decodeYear(b byte) int {
	return calendar.MinYear + bcd.Decode(b)
}

// The chip counts days 1 to 7; 1 is Sunday here.
func decodeWeekday(b byte) time.Weekday {
	return time.Weekday((int(b&0x07) + 6) % 7)
}

func encodeWeekday(w time.Weekday) byte {
	return byte(w%7) + 1
}

// decodeDateTime converts the 7 byte second..year block.
func decodeDateTime(b []byte) calendar.DateTime {
	return calendar.DateTime{
		Second:    secondsReg(b[0]).seconds(),
		Minute:    decodeMinute(b[1]),
		Hour:      hoursReg(b[2]).hours(),
		DayOfWeek: decodeWeekday(b[3]),
		Day:       decodeDate(b[4]),
		Month:     decodeMonth(b[5]),
		Year:      decodeYear(b[6]),
	}
}

// encodeDateTime returns a register write starting at the seconds register.
// dt must already be clamped. The clock halt bit ends up cleared and the
// hour in 24 hour mode.
func encodeDateTime(dt calendar.DateTime) []byte {
	return []byte{
		regSecond,
		byte(secondsReg(0).withSeconds(dt.Second)),
		bcd.Encode(dt.Minute),
		byte(hours24(dt.Hour)),
		encodeWeekday(dt.DayOfWeek),
		bcd.Encode(dt.Day),
		bcd.Encode(int(dt.Month)),
		bcd.Encode(dt.Year - calendar.MinYear),
	}
}
