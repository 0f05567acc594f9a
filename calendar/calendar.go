// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package calendar holds the broken-down date and time exchanged with real
// time clock chips, and the small amount of calendar arithmetic they need.
package calendar

import (
	"fmt"
	"time"
)

const (
	// MinYear and MaxYear bound the years a two digit BCD year register can
	// hold once the fixed 2000 base is added.
	MinYear = 2000
	MaxYear = 2099
)

// DateTime is a wall clock reading as stored by an RTC chip.
//
// DayOfWeek is derived from the date when written to a chip and is never
// trusted on its own.
type DateTime struct {
	Year      int
	Month     time.Month
	Day       int
	Hour      int
	Minute    int
	Second    int
	DayOfWeek time.Weekday
}

// DayOfWeek returns the proleptic Gregorian weekday of the given date, with
// Sunday as 0.
//
// The month is renumbered so that March is 1 and February is 12, which puts
// the leap day at the end of the counting year.
func DayOfWeek(day int, month time.Month, year int) time.Weekday {
	m := 1 + (9+int(month))%12
	y := year
	if m > 10 {
		y--
	}
	c := y / 100
	d := y % 100
	w := (day + (13*m-1)/5 + d + d/4 + c/4 - 2*c) % 7
	if w < 0 {
		w += 7
	}
	return time.Weekday(w)
}

// Clamp caps every field at its largest valid value so that it fits the chip
// registers.
//
// Only upper bounds are enforced. Day 31 is accepted in every month and no
// field is raised to a minimum; callers pass non-negative values.
func Clamp(dt DateTime) DateTime {
	dt.Second = min(dt.Second, 59)
	dt.Minute = min(dt.Minute, 59)
	dt.Hour = min(dt.Hour, 23)
	dt.Day = min(dt.Day, 31)
	dt.Month = min(dt.Month, time.December)
	dt.Year = min(dt.Year, MaxYear)
	return dt
}

// FromTime converts t, in its own location, to a DateTime.
func FromTime(t time.Time) DateTime {
	return DateTime{
		Year:      t.Year(),
		Month:     t.Month(),
		Day:       t.Day(),
		Hour:      t.Hour(),
		Minute:    t.Minute(),
		Second:    t.Second(),
		DayOfWeek: t.Weekday(),
	}
}

// Time returns dt as a time.Time in loc. Out of range fields are normalized
// the way time.Date does it.
func (dt DateTime) Time(loc *time.Location) time.Time {
	return time.Date(dt.Year, dt.Month, dt.Day, dt.Hour, dt.Minute, dt.Second, 0, loc)
}

func (dt DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d %s",
		dt.Year, int(dt.Month), dt.Day, dt.Hour, dt.Minute, dt.Second, dt.DayOfWeek)
}
