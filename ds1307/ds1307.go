// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds1307

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GermanBionicSystems/clockenv/bcd"
	"github.com/GermanBionicSystems/clockenv/calendar"
	"github.com/GermanBionicSystems/clockenv/i2cmgr"
	"github.com/GermanBionicSystems/clockenv/snapshot"
)

// Opts holds the configuration options for the device.
type Opts struct {
	// Addr is the I²C address. Default is DefaultAddr.
	Addr uint16
	// Logger receives refresh failures. Default is slog.Default().
	Logger *slog.Logger
}

// DefaultOpts holds the default configuration options for the device.
var DefaultOpts = Opts{Addr: DefaultAddr}

// Dev is a handle to a DS1307.
type Dev struct {
	port i2cmgr.Port
	addr uint16
	out  *snapshot.Slot[calendar.DateTime]
	log  *slog.Logger
}

// New binds the chip on port and starts its oscillator by clearing the clock
// halt flag.
//
// Refresh stores into out. If out is nil the Dev allocates its own slot,
// available through Slot. The Opts can be nil.
func New(ctx context.Context, port i2cmgr.Port, out *snapshot.Slot[calendar.DateTime], opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if out == nil {
		out = &snapshot.Slot[calendar.DateTime]{}
	}
	d := &Dev{port: port, addr: opts.Addr, out: out, log: opts.Logger}
	if d.addr == 0 {
		d.addr = DefaultAddr
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if err := d.SetClockHalt(ctx, false); err != nil {
		return nil, fmt.Errorf("ds1307: init: %w", err)
	}
	return d, nil
}

// Slot returns the slot Refresh stores into.
func (d *Dev) Slot() *snapshot.Slot[calendar.DateTime] {
	return d.out
}

func (d *Dev) String() string {
	return fmt.Sprintf("ds1307: 0x%02x", d.addr)
}

// readReg reads a single register.
func (d *Dev) readReg(ctx context.Context, reg byte) (byte, error) {
	var r [1]byte
	err := d.port.Perform(ctx, i2cmgr.WriteNoStop(d.addr, []byte{reg}), i2cmgr.Read(d.addr, r[:]))
	return r[0], err
}

// writeReg writes consecutive registers starting at reg.
func (d *Dev) writeReg(ctx context.Context, reg byte, v ...byte) error {
	return d.port.Perform(ctx, i2cmgr.Write(d.addr, append([]byte{reg}, v...)))
}

// modifyReg reads reg, passes it through f and writes the result back.
func (d *Dev) modifyReg(ctx context.Context, reg byte, f func(byte) byte) error {
	v, err := d.readReg(ctx, reg)
	if err != nil {
		return err
	}
	return d.writeReg(ctx, reg, f(v))
}

// ClockHalt reports whether the oscillator is stopped.
func (d *Dev) ClockHalt(ctx context.Context) (bool, error) {
	v, err := d.readReg(ctx, regSecond)
	return secondsReg(v).halted(), err
}

// SetClockHalt stops (true) or starts (false) the oscillator. The seconds
// count is kept.
func (d *Dev) SetClockHalt(ctx context.Context, halt bool) error {
	return d.modifyReg(ctx, regSecond, func(v byte) byte {
		return byte(secondsReg(v).withHalt(halt))
	})
}

// Second returns the seconds, 0 to 59.
func (d *Dev) Second(ctx context.Context) (int, error) {
	v, err := d.readReg(ctx, regSecond)
	return secondsReg(v).seconds(), err
}

// Minute returns the minutes, 0 to 59.
func (d *Dev) Minute(ctx context.Context) (int, error) {
	v, err := d.readReg(ctx, regMinute)
	return decodeMinute(v), err
}

// Hour returns the hour in 24 hour format, 0 to 23. A chip left in 12 hour
// mode by other software is converted.
func (d *Dev) Hour(ctx context.Context) (int, error) {
	v, err := d.readReg(ctx, regHour)
	return hoursReg(v).hours(), err
}

// DayOfWeek returns the stored day of week.
func (d *Dev) DayOfWeek(ctx context.Context) (time.Weekday, error) {
	v, err := d.readReg(ctx, regDow)
	return decodeWeekday(v), err
}

// Date returns the day of month, 1 to 31.
func (d *Dev) Date(ctx context.Context) (int, error) {
	v, err := d.readReg(ctx, regDate)
	return decodeDate(v), err
}

// Month returns the month.
func (d *Dev) Month(ctx context.Context) (time.Month, error) {
	v, err := d.readReg(ctx, regMonth)
	return decodeMonth(v), err
}

// Year returns the year, 2000 to 2099.
func (d *Dev) Year(ctx context.Context) (int, error) {
	v, err := d.readReg(ctx, regYear)
	return decodeYear(v), err
}

// Century returns the raw century byte kept in RAM by SetYear.
func (d *Dev) Century(ctx context.Context) (byte, error) {
	return d.readReg(ctx, regCentury)
}

// TimeZoneHour returns the stored UTC hour offset. It is only a stored value,
// the clock does not apply it.
func (d *Dev) TimeZoneHour(ctx context.Context) (int8, error) {
	v, err := d.readReg(ctx, regUTCHour)
	return int8(v), err
}

// TimeZoneMinute returns the stored UTC minute offset.
func (d *Dev) TimeZoneMinute(ctx context.Context) (uint8, error) {
	return d.readReg(ctx, regUTCMin)
}

// SetSecond sets the seconds. Values above 59 are capped. The clock halt flag
// is kept as it is.
func (d *Dev) SetSecond(ctx context.Context, second int) error {
	second = min(second, 59)
	return d.modifyReg(ctx, regSecond, func(v byte) byte {
		return byte(secondsReg(v).withSeconds(second))
	})
}

// SetMinute sets the minutes. Values above 59 are capped.
func (d *Dev) SetMinute(ctx context.Context, minute int) error {
	return d.writeReg(ctx, regMinute, bcd.Encode(min(minute, 59)))
}

// SetHour sets the hour and switches the chip to 24 hour mode. Values above
// 23 are capped.
func (d *Dev) SetHour(ctx context.Context, hour int) error {
	return d.writeReg(ctx, regHour, byte(hours24(min(hour, 23))))
}

// SetDayOfWeek overwrites the day of week. SetDateTime computes it, this is
// only needed to correct a chip set by other software.
func (d *Dev) SetDayOfWeek(ctx context.Context, w time.Weekday) error {
	return d.writeReg(ctx, regDow, encodeWeekday(w))
}

// SetDate sets the day of month. Values above 31 are capped.
func (d *Dev) SetDate(ctx context.Context, date int) error {
	return d.writeReg(ctx, regDate, bcd.Encode(min(date, 31)))
}

// SetMonth sets the month. Values above December are capped.
func (d *Dev) SetMonth(ctx context.Context, month time.Month) error {
	return d.writeReg(ctx, regMonth, bcd.Encode(int(min(month, time.December))))
}

// SetYear sets the year, which must be 2000 or later; values above 2099 are
// capped. The year register and the century byte are written in one
// transaction.
func (d *Dev) SetYear(ctx context.Context, year int) error {
	year = min(year, calendar.MaxYear)
	return d.port.Perform(ctx,
		i2cmgr.Write(d.addr, []byte{regYear, bcd.Encode(year - calendar.MinYear)}),
		i2cmgr.Write(d.addr, []byte{regCentury, byte(year / 100)}),
	)
}

// SetTimeZone stores the UTC offset. Both bytes are stored raw, not BCD.
func (d *Dev) SetTimeZone(ctx context.Context, hour int8, minute uint8) error {
	return d.writeReg(ctx, regUTCHour, byte(hour), minute)
}

// SetSquareWave enables or disables the SQW/OUT square wave output.
func (d *Dev) SetSquareWave(ctx context.Context, on bool) error {
	return d.modifyReg(ctx, regControl, func(v byte) byte {
		return byte(controlReg(v).withSquareWave(on))
	})
}

// SetRate selects the square wave frequency.
func (d *Dev) SetRate(ctx context.Context, r Rate) error {
	return d.modifyReg(ctx, regControl, func(v byte) byte {
		return byte(controlReg(v).withRate(r))
	})
}

// SetOutputLevel sets the SQW/OUT pin level used while the square wave is
// disabled.
func (d *Dev) SetOutputLevel(ctx context.Context, high bool) error {
	return d.modifyReg(ctx, regControl, func(v byte) byte {
		return byte(controlReg(v).withOut(high))
	})
}

// SquareWave returns the square wave enable flag and rate.
func (d *Dev) SquareWave(ctx context.Context) (bool, Rate, error) {
	v, err := d.readReg(ctx, regControl)
	c := controlReg(v)
	return c.squareWave(), c.rate(), err
}

// SetDateTime clamps dt with calendar.Clamp, derives the day of week and
// writes all seven clock registers in a single bus transaction so no reader
// can see a half updated clock. It returns what was written.
//
// Writing the seconds register clears the clock halt flag, so this also
// starts a halted clock.
func (d *Dev) SetDateTime(ctx context.Context, dt calendar.DateTime) (calendar.DateTime, error) {
	c := calendar.Clamp(dt)
	c.DayOfWeek = calendar.DayOfWeek(c.Day, c.Month, c.Year)
	return c, d.port.Perform(ctx, i2cmgr.Write(d.addr, encodeDateTime(c)))
}

// DateTime reads the seven clock registers in one transaction.
func (d *Dev) DateTime(ctx context.Context) (calendar.DateTime, error) {
	var b [dateTimeLen]byte
	err := d.port.Perform(ctx, i2cmgr.WriteNoStop(d.addr, []byte{regSecond}), i2cmgr.Read(d.addr, b[:]))
	if err != nil {
		return calendar.DateTime{}, err
	}
	return decodeDateTime(b[:]), nil
}

// Set writes the wall clock of t, in t's location.
func (d *Dev) Set(ctx context.Context, t time.Time) error {
	_, err := d.SetDateTime(ctx, calendar.FromTime(t))
	return err
}

// Now returns the chip's wall clock in loc.
func (d *Dev) Now(ctx context.Context, loc *time.Location) (time.Time, error) {
	dt, err := d.DateTime(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return dt.Time(loc), nil
}

// Refresh queues a read of the date and time and returns without waiting
// for the bus. On success the decoded value is stored into the slot. On
// failure a warning is logged and the slot keeps its previous value.
//
// Do not call Refresh again before the returned Pending completed.
func (d *Dev) Refresh() (*i2cmgr.Pending, error) {
	b := make([]byte, dateTimeLen)
	return d.port.Schedule(
		[]i2cmgr.Transfer{i2cmgr.WriteNoStop(d.addr, []byte{regSecond}), i2cmgr.Read(d.addr, b)},
		func(err error) {
			if err != nil {
				d.log.Warn("ds1307: refresh failed, keeping previous date/time", "addr", d.addr, "err", err)
				return
			}
			d.out.Store(decodeDateTime(b))
		})
}
