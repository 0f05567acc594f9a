// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hdc1080

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/GermanBionicSystems/clockenv/i2cmgr"
	"github.com/GermanBionicSystems/clockenv/i2csim"
	"github.com/GermanBionicSystems/clockenv/snapshot"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

var ctx = context.Background()

// fakeChip models the 16 bit register file of the sensor. Reads return words
// from the pointer on, which yields temperature then humidity after a trigger.
type fakeChip struct {
	mu       sync.Mutex
	regs     map[byte]uint16
	ptr      byte
	triggers int
}

func newFakeChip(temp, humidity uint16) *fakeChip {
	return &fakeChip{regs: map[byte]uint16{
		regTemperature:  temp,
		regHumidity:     humidity,
		regManufacturer: ManufacturerTI,
		regDevice:       DeviceHDC1080,
	}}
}

func (c *fakeChip) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(w) > 0 {
		c.ptr = w[0]
		if len(w) == 3 {
			c.regs[w[0]] = uint16(w[1])<<8 | uint16(w[2])
		}
		if len(w) == 1 && w[0] == regTemperature {
			c.triggers++
		}
	}
	for i := 0; i+1 < len(r); i += 2 {
		v := c.regs[c.ptr]
		r[i], r[i+1] = byte(v>>8), byte(v)
		c.ptr++
	}
	return nil
}

func (c *fakeChip) config() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[regConfig]
}

var fastOpts = Opts{ConversionTime: time.Millisecond}

func newSim(t *testing.T, chip *fakeChip) (*Dev, *i2csim.Bus) {
	t.Helper()
	bus := i2csim.New()
	bus.Attach(DefaultAddr, chip)
	m := i2cmgr.New(bus, nil)
	t.Cleanup(func() { _ = m.Halt() })
	dev, err := New(ctx, m, nil, &fastOpts)
	if err != nil {
		t.Fatal(err)
	}
	return dev, bus
}

func celsius(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Celsius)
}

func percent(h physic.RelativeHumidity) float64 {
	return float64(h) / float64(physic.PercentRH)
}

func TestConversion(t *testing.T) {
	raw := []byte{0x31, 0x9a, 0x6a, 0x82}
	wantT := float64(0x319a)/65536.0*165.0 - 40.0
	wantH := math.Floor(float64(0x6a82) / 65536.0 * 100.0)
	if got := countToTemperature(0x319a); math.Abs(got-wantT) > 1e-6 {
		t.Errorf("countToTemperature() = %f, expected %f", got, wantT)
	}
	if got := countToHumidity(0x6a82); got != wantH || got != 41 {
		t.Errorf("countToHumidity() = %f, expected %f", got, wantH)
	}
	env := convert(raw)
	if got := celsius(env.Temperature); math.Abs(got-wantT) > 1e-6 {
		t.Errorf("temperature %f, expected %f", got, wantT)
	}
	if got := percent(env.Humidity); math.Abs(got-wantH) > 1e-6 {
		t.Errorf("humidity %f, expected %f", got, wantH)
	}
}

func TestConversionLimits(t *testing.T) {
	env := convert([]byte{0, 0, 0, 0})
	if got := celsius(env.Temperature); math.Abs(got+40) > 1e-6 || env.Humidity != 0 {
		t.Errorf("zero counts: %s", env)
	}
	env = convert([]byte{0xff, 0xff, 0xff, 0xff})
	if got := celsius(env.Temperature); got >= 125 || got < 124.99 {
		t.Errorf("full scale temperature %f", got)
	}
	if env.Humidity != 99*physic.PercentRH {
		t.Errorf("full scale humidity %s", env.Humidity)
	}
}

func TestConfigWord(t *testing.T) {
	tests := []struct {
		temp   TemperatureResolution
		hum    HumidityResolution
		heater bool
		want   []byte
	}{
		{Temperature14Bit, Humidity14Bit, false, []byte{0x02, 0x10, 0x00}},
		{Temperature11Bit, Humidity14Bit, false, []byte{0x02, 0x14, 0x00}},
		{Temperature14Bit, Humidity11Bit, false, []byte{0x02, 0x11, 0x00}},
		{Temperature14Bit, Humidity8Bit, false, []byte{0x02, 0x12, 0x00}},
		{Temperature11Bit, Humidity11Bit, false, []byte{0x02, 0x15, 0x00}},
		{Temperature11Bit, Humidity8Bit, true, []byte{0x02, 0x36, 0x00}},
	}
	for _, test := range tests {
		pb := &i2ctest.Playback{
			Ops:       []i2ctest.IO{{Addr: DefaultAddr, W: test.want}},
			DontPanic: true,
		}
		m := i2cmgr.New(pb, nil)
		_, err := New(ctx, m, nil, &Opts{Temperature: test.temp, Humidity: test.hum, Heater: test.heater})
		if err != nil {
			t.Errorf("%d/%d/%t: %v", test.temp, test.hum, test.heater, err)
		}
		if err := pb.Close(); err != nil {
			t.Errorf("%d/%d/%t: %v", test.temp, test.hum, test.heater, err)
		}
		_ = m.Halt()
	}
}

func TestInitFault(t *testing.T) {
	m := i2cmgr.New(i2csim.New(), nil)
	defer m.Halt()
	_, err := New(ctx, m, nil, nil)
	var be *i2cmgr.BusError
	if !errors.As(err, &be) || !errors.Is(err, i2csim.ErrNACK) {
		t.Errorf("New() returned %v", err)
	}
}

func TestMeasureBlocking(t *testing.T) {
	pb := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{0x02, 0x10, 0x00}},
			{Addr: DefaultAddr, W: []byte{0x00}},
			{Addr: DefaultAddr, R: []byte{0x31, 0x9a, 0x6a, 0x82}},
		},
		DontPanic: true,
	}
	m := i2cmgr.New(pb, nil)
	defer m.Halt()
	dev, err := New(ctx, m, nil, &fastOpts)
	if err != nil {
		t.Fatal(err)
	}
	temp, hum, err := dev.MeasureBlocking(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := celsius(temp); math.Abs(got-(-8.030242919921875)) > 1e-6 {
		t.Errorf("temperature %f", got)
	}
	if hum != 41*physic.PercentRH {
		t.Errorf("humidity %s", hum)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestMeasureBlockingCancelled(t *testing.T) {
	chip := newFakeChip(0, 0)
	bus := i2csim.New()
	bus.Attach(DefaultAddr, chip)
	m := i2cmgr.New(bus, nil)
	defer m.Halt()
	dev, err := New(ctx, m, nil, &Opts{ConversionTime: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	c, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, _, err := dev.MeasureBlocking(c); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("MeasureBlocking() returned %v", err)
	}
}

func TestMeasureBlockingFault(t *testing.T) {
	dev, bus := newSim(t, newFakeChip(0x319a, 0x6a82))
	injected := errors.New("arbitration lost")
	bus.InjectFault(nil, injected)
	_, _, err := dev.MeasureBlocking(ctx)
	var be *i2cmgr.BusError
	if !errors.As(err, &be) || be.Err != injected || be.Op != i2cmgr.OpRead {
		t.Errorf("MeasureBlocking() returned %v", err)
	}
}

func TestTwoPhaseMeasurement(t *testing.T) {
	chip := newFakeChip(0x6666, 0x8000)
	dev, _ := newSim(t, chip)

	p, err := dev.StartMeasurement()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(dev.ConversionTime())
	p, err = dev.FetchMeasurement()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if chip.triggers != 1 {
		t.Errorf("%d triggers", chip.triggers)
	}
	env, _, n, ok := dev.Slot().Snapshot()
	if !ok || n != 1 {
		t.Fatalf("slot not written: %t %d", ok, n)
	}
	if got, want := celsius(env.Temperature), countToTemperature(0x6666); math.Abs(got-want) > 1e-6 {
		t.Errorf("temperature %f, expected %f", got, want)
	}
	if env.Humidity != 50*physic.PercentRH {
		t.Errorf("humidity %s", env.Humidity)
	}
}

func TestFetchFaultKeepsReading(t *testing.T) {
	chip := newFakeChip(0x6666, 0x8000)
	bus := i2csim.New()
	bus.Attach(DefaultAddr, chip)
	m := i2cmgr.New(bus, nil)
	defer m.Halt()
	var slot snapshot.Slot[physic.Env]
	prev := physic.Env{Temperature: physic.ZeroCelsius + 21*physic.Celsius, Humidity: 40 * physic.PercentRH}
	slot.Store(prev)
	dev, err := New(ctx, m, &slot, &fastOpts)
	if err != nil {
		t.Fatal(err)
	}
	bus.InjectFault(errors.New("timeout"))
	p, err := dev.FetchMeasurement()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(ctx); err == nil {
		t.Fatal("expected the fetch to fail")
	}
	got, _, n, _ := slot.Snapshot()
	if got != prev || n != 1 {
		t.Errorf("slot changed to %s after a failed fetch", got)
	}
}

func TestReadIDs(t *testing.T) {
	pb := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{0x02, 0x10, 0x00}},
			{Addr: DefaultAddr, W: []byte{0xfe}, R: []byte{0x54, 0x49}},
			{Addr: DefaultAddr, W: []byte{0xff}, R: []byte{0x10, 0x50}},
		},
		DontPanic: true,
	}
	m := i2cmgr.New(pb, nil)
	defer m.Halt()
	dev, err := New(ctx, m, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	mfg, id, err := dev.ReadIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if mfg != ManufacturerTI || id != DeviceHDC1080 {
		t.Errorf("ReadIDs() = %#04x, %#04x", mfg, id)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestHeaterConfig(t *testing.T) {
	chip := newFakeChip(0, 0)
	bus := i2csim.New()
	bus.Attach(DefaultAddr, chip)
	m := i2cmgr.New(bus, nil)
	defer m.Halt()
	if _, err := New(ctx, m, nil, &Opts{Heater: true}); err != nil {
		t.Fatal(err)
	}
	if got := chip.config(); got != 0x3000 {
		t.Errorf("config %#04x, expected 0x3000", got)
	}
}

func TestSense(t *testing.T) {
	dev, _ := newSim(t, newFakeChip(0x319a, 0x6a82))
	env := physic.Env{Pressure: 1}
	if err := dev.Sense(&env); err != nil {
		t.Fatal(err)
	}
	if env.Pressure != 0 || env.Humidity != 41*physic.PercentRH {
		t.Errorf("Sense() = %s", env)
	}
}

func TestSenseContinuous(t *testing.T) {
	dev, _ := newSim(t, newFakeChip(0x319a, 0x6a82))
	if _, err := dev.SenseContinuous(0); err == nil {
		t.Error("expected an error for an interval below the conversion time")
	}
	ch, err := dev.SenseContinuous(5 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.SenseContinuous(5 * time.Millisecond); err == nil {
		t.Error("expected an error for a second loop")
	}
	for range 3 {
		env := <-ch
		if env.Humidity != 41*physic.PercentRH {
			t.Errorf("reading %s", env)
		}
	}
	if err := dev.Halt(); err != nil {
		t.Fatal(err)
	}
	for range ch {
	}
	// Halt is idempotent and the loop can be restarted.
	if err := dev.Halt(); err != nil {
		t.Fatal(err)
	}
	ch, err = dev.SenseContinuous(5 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	<-ch
	_ = dev.Halt()
}

func TestPrecision(t *testing.T) {
	dev, _ := newSim(t, newFakeChip(0, 0))
	var fine, coarse physic.Env
	dev.Precision(&fine)
	dev.tres = Temperature11Bit
	dev.Precision(&coarse)
	if fine.Humidity != physic.PercentRH || fine.Temperature <= 0 {
		t.Errorf("Precision() = %s", fine)
	}
	if r := float64(coarse.Temperature) / float64(fine.Temperature); math.Abs(r-32) > 1e-3 {
		t.Errorf("11 bit precision %s, 14 bit %s", coarse.Temperature, fine.Temperature)
	}
	if s := dev.String(); s != "hdc1080: 0x40" {
		t.Errorf("String() = %q", s)
	}
}
