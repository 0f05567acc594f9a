// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// This package provides a driver for the Texas Instruments HDC1080 I2C
// Temperature/Humidity Sensor.
//
// The chip is configured to acquire both channels on one trigger. Writing the
// temperature register pointer starts a conversion; after the conversion time
// a 4 byte read returns temperature and humidity, big-endian.
//
// Datasheet
//
//	https://www.ti.com/lit/ds/symlink/hdc1080.pdf
package hdc1080

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/GermanBionicSystems/clockenv/i2cmgr"
	"github.com/GermanBionicSystems/clockenv/snapshot"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

const (
	// The fixed i2c bus address of the device.
	DefaultAddr uint16 = 0x40

	// Manufacturer and device ID register contents of a genuine part.
	ManufacturerTI uint16 = 0x5449
	DeviceHDC1080  uint16 = 0x1050
)

const (
	regTemperature  byte = 0x00
	regHumidity     byte = 0x01
	regConfig       byte = 0x02
	regManufacturer byte = 0xfe
	regDevice       byte = 0xff

	// Length of a temperature plus humidity read.
	measurementLen = 4
)

// TemperatureResolution selects the temperature conversion width.
type TemperatureResolution uint8

const (
	Temperature14Bit TemperatureResolution = iota
	Temperature11Bit
)

// HumidityResolution selects the humidity conversion width.
type HumidityResolution uint8

const (
	Humidity14Bit HumidityResolution = iota
	Humidity11Bit
	Humidity8Bit
)

// configWord is the configuration register 0x02.
type configWord uint16

const (
	cfgHeater  configWord = 1 << 13
	cfgModeSeq configWord = 1 << 12
	cfgTemp11  configWord = 1 << 10
	cfgHum8    configWord = 1 << 9
	cfgHum11   configWord = 1 << 8
)

func newConfig(t TemperatureResolution, h HumidityResolution, heater bool) configWord {
	c := cfgModeSeq
	if t == Temperature11Bit {
		c |= cfgTemp11
	}
	switch h {
	case Humidity11Bit:
		c |= cfgHum11
	case Humidity8Bit:
		c |= cfgHum8
	}
	if heater {
		c |= cfgHeater
	}
	return c
}

func (c configWord) bytes() []byte {
	return []byte{regConfig, byte(c >> 8), byte(c)}
}

const (
	// Magic numbers for count to value conversions.
	temperatureOffset float64 = -40.0
	temperatureScalar float64 = 165.0
	humidityScalar    float64 = 100.0
	scaleDivisor      float64 = 65536.0
)

// Opts holds the configuration options for the device.
type Opts struct {
	Temperature TemperatureResolution
	Humidity    HumidityResolution
	// Heater turns on the internal heater while measuring, to drive off
	// condensation.
	Heater bool
	// ConversionTime is how long MeasureBlocking waits between the trigger
	// and the read. Default is 15ms, enough for both channels at 14 bits.
	ConversionTime time.Duration
	// Logger receives failures of scheduled transactions. Default is
	// slog.Default().
	Logger *slog.Logger
}

// DefaultOpts holds the default configuration options for the device.
var DefaultOpts = Opts{
	Temperature:    Temperature14Bit,
	Humidity:       Humidity14Bit,
	ConversionTime: 15 * time.Millisecond,
}

// Dev represents a hdc1080 sensor.
type Dev struct {
	port i2cmgr.Port
	addr uint16
	cfg  configWord
	conv time.Duration
	tres TemperatureResolution
	out  *snapshot.Slot[physic.Env]
	log  *slog.Logger

	mu       sync.Mutex
	shutdown chan struct{}
}

// New writes the configuration register and binds out as the destination of
// FetchMeasurement. If out is nil the Dev allocates its own slot, available
// through Slot. The Opts can be nil.
//
// The configuration is not changed afterwards.
func New(ctx context.Context, port i2cmgr.Port, out *snapshot.Slot[physic.Env], opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if out == nil {
		out = &snapshot.Slot[physic.Env]{}
	}
	dev := &Dev{
		port: port,
		addr: DefaultAddr,
		cfg:  newConfig(opts.Temperature, opts.Humidity, opts.Heater),
		conv: opts.ConversionTime,
		tres: opts.Temperature,
		out:  out,
		log:  opts.Logger,
	}
	if dev.conv <= 0 {
		dev.conv = DefaultOpts.ConversionTime
	}
	if dev.log == nil {
		dev.log = slog.Default()
	}
	if err := port.Perform(ctx, i2cmgr.Write(dev.addr, dev.cfg.bytes())); err != nil {
		return nil, fmt.Errorf("hdc1080: init: %w", err)
	}
	return dev, nil
}

// Slot returns the slot FetchMeasurement stores into.
func (dev *Dev) Slot() *snapshot.Slot[physic.Env] {
	return dev.out
}

// ConversionTime returns the delay needed between StartMeasurement and
// FetchMeasurement.
func (dev *Dev) ConversionTime() time.Duration {
	return dev.conv
}

func (dev *Dev) String() string {
	return fmt.Sprintf("hdc1080: 0x%02x", dev.addr)
}

// countToTemperature converts the raw temperature count to degrees Celsius.
func countToTemperature(count uint16) float64 {
	return float64(count)/scaleDivisor*temperatureScalar + temperatureOffset
}

// countToHumidity converts the raw humidity count to whole percent, rounded
// down.
func countToHumidity(count uint16) float64 {
	return math.Floor(float64(count) / scaleDivisor * humidityScalar)
}

// convert decodes the [tempHigh, tempLow, humidityHigh, humidityLow] block.
func convert(b []byte) physic.Env {
	t := countToTemperature(uint16(b[0])<<8 | uint16(b[1]))
	h := countToHumidity(uint16(b[2])<<8 | uint16(b[3]))
	return physic.Env{
		Temperature: physic.ZeroCelsius + physic.Temperature(t*float64(physic.Celsius)),
		Humidity:    physic.RelativeHumidity(h * float64(physic.PercentRH)),
	}
}

// StartMeasurement queues the conversion trigger and returns without waiting
// for the bus. FetchMeasurement must not be called before ConversionTime
// elapsed after the returned Pending completed.
func (dev *Dev) StartMeasurement() (*i2cmgr.Pending, error) {
	return dev.port.Schedule(
		[]i2cmgr.Transfer{i2cmgr.Write(dev.addr, []byte{regTemperature})},
		func(err error) {
			if err != nil {
				dev.log.Warn("hdc1080: trigger failed", "addr", dev.addr, "err", err)
			}
		})
}

// FetchMeasurement queues the read of a finished conversion. On success the
// converted values are stored into the slot. On failure a warning is logged
// and the slot keeps its previous value.
func (dev *Dev) FetchMeasurement() (*i2cmgr.Pending, error) {
	b := make([]byte, measurementLen)
	return dev.port.Schedule(
		[]i2cmgr.Transfer{i2cmgr.Read(dev.addr, b)},
		func(err error) {
			if err != nil {
				dev.log.Warn("hdc1080: fetch failed, keeping previous reading", "addr", dev.addr, "err", err)
				return
			}
			dev.out.Store(convert(b))
		})
}

// MeasureBlocking triggers a conversion, waits for it and reads the result.
// The bus is free for other users while the chip converts.
func (dev *Dev) MeasureBlocking(ctx context.Context) (physic.Temperature, physic.RelativeHumidity, error) {
	if err := dev.port.Perform(ctx, i2cmgr.Write(dev.addr, []byte{regTemperature})); err != nil {
		return 0, 0, err
	}
	t := time.NewTimer(dev.conv)
	select {
	case <-t.C:
	case <-ctx.Done():
		t.Stop()
		return 0, 0, ctx.Err()
	}
	var b [measurementLen]byte
	if err := dev.port.Perform(ctx, i2cmgr.Read(dev.addr, b[:])); err != nil {
		return 0, 0, err
	}
	e := convert(b[:])
	return e.Temperature, e.Humidity, nil
}

// readWord reads a 16 bit register.
func (dev *Dev) readWord(ctx context.Context, reg byte) (uint16, error) {
	var r [2]byte
	if err := dev.port.Perform(ctx, i2cmgr.WriteNoStop(dev.addr, []byte{reg}), i2cmgr.Read(dev.addr, r[:])); err != nil {
		return 0, err
	}
	return uint16(r[0])<<8 | uint16(r[1]), nil
}

// ReadIDs returns the manufacturer and device ID registers, ManufacturerTI
// and DeviceHDC1080 on a genuine part.
func (dev *Dev) ReadIDs(ctx context.Context) (manufacturer, device uint16, err error) {
	if manufacturer, err = dev.readWord(ctx, regManufacturer); err != nil {
		return 0, 0, err
	}
	if device, err = dev.readWord(ctx, regDevice); err != nil {
		return 0, 0, err
	}
	return manufacturer, device, nil
}

// Sense measures temperature and humidity and writes them to env. Implements
// physic.SenseEnv.
func (dev *Dev) Sense(env *physic.Env) error {
	env.Temperature = 0
	env.Pressure = 0
	env.Humidity = 0
	t, h, err := dev.MeasureBlocking(context.Background())
	if err != nil {
		return fmt.Errorf("hdc1080: %w", err)
	}
	env.Temperature = t
	env.Humidity = h
	return nil
}

// SenseContinuous measures every interval and writes the value to the
// returned channel. Implements physic.SenseEnv. To terminate the continuous
// read, call Halt().
//
// If interval is shorter than the conversion time, an error is returned.
func (dev *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < dev.conv {
		return nil, errors.New("hdc1080: sample interval is < conversion time")
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.shutdown != nil {
		return nil, errors.New("hdc1080: SenseContinuous already running")
	}
	shutdown := make(chan struct{})
	dev.shutdown = shutdown
	ch := make(chan physic.Env, 16)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(ch)
		for {
			select {
			case <-shutdown:
				return
			case <-ticker.C:
				env := physic.Env{}
				if err := dev.Sense(&env); err != nil {
					dev.log.Warn("hdc1080: continuous sense failed", "addr", dev.addr, "err", err)
					continue
				}
				select {
				case ch <- env:
				case <-shutdown:
					return
				}
			}
		}
	}()
	return ch, nil
}

// Precision returns the step between two consecutive readings. Humidity is
// always reported in whole percent.
func (dev *Dev) Precision(env *physic.Env) {
	steps := scaleDivisor
	if dev.tres == Temperature11Bit {
		steps = 1 << 11
	}
	env.Temperature = physic.Temperature(math.Round(temperatureScalar / steps * float64(physic.Celsius)))
	env.Humidity = physic.PercentRH
	env.Pressure = 0
}

// Halt stops a SenseContinuous loop. The chip itself returns to sleep after
// every conversion. Implements conn.Resource.
func (dev *Dev) Halt() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.shutdown != nil {
		close(dev.shutdown)
		dev.shutdown = nil
	}
	return nil
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
