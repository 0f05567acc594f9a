// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package station drives the periodic refresh of the clock and environment
// readings and puts them on the display.
//
// Every tick queues an RTC refresh and a sensor trigger on the bus, waits for
// the sensor conversion, queues the sensor read, then renders the values
// found in the slots. A tick that fires while the previous cycle is still
// running is skipped, so at most one refresh per driver is ever queued.
package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GermanBionicSystems/clockenv/calendar"
	"github.com/GermanBionicSystems/clockenv/i2cmgr"
	"github.com/GermanBionicSystems/clockenv/mqttpub"
	"github.com/GermanBionicSystems/clockenv/snapshot"
	cron "github.com/robfig/cron/v3"
	"periph.io/x/conn/v3/physic"
)

// Clock is the asynchronous side of an RTC driver.
type Clock interface {
	Refresh() (*i2cmgr.Pending, error)
	Slot() *snapshot.Slot[calendar.DateTime]
}

// Sensor is the asynchronous side of an environment sensor driver.
type Sensor interface {
	StartMeasurement() (*i2cmgr.Pending, error)
	FetchMeasurement() (*i2cmgr.Pending, error)
	ConversionTime() time.Duration
	Slot() *snapshot.Slot[physic.Env]
}

// Renderer shows lines of text.
type Renderer interface {
	Render(lines ...string) error
}

// Publisher forwards readings, e.g. *mqttpub.Publisher.
type Publisher interface {
	Publish(r mqttpub.Reading) error
}

// Opts holds the configuration options for the station.
type Opts struct {
	// Spec is the cron spec of the refresh tick. Default is "@every 1s".
	Spec string
	// ConversionDelay overrides the sensor's conversion time.
	ConversionDelay time.Duration
	Logger          *slog.Logger
}

// DefaultOpts holds the default configuration options for the station.
var DefaultOpts = Opts{Spec: "@every 1s"}

// Station owns the refresh cycle. Publisher may be nil.
type Station struct {
	clock  Clock
	sensor Sensor
	out    Renderer
	pub    Publisher
	spec   string
	delay  time.Duration
	log    *slog.Logger

	busy    atomic.Bool
	skipped atomic.Int64
	wg      sync.WaitGroup

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a stopped Station. The Opts can be nil.
func New(clock Clock, sensor Sensor, out Renderer, pub Publisher, opts *Opts) *Station {
	if opts == nil {
		opts = &DefaultOpts
	}
	s := &Station{
		clock:  clock,
		sensor: sensor,
		out:    out,
		pub:    pub,
		spec:   opts.Spec,
		delay:  opts.ConversionDelay,
		log:    opts.Logger,
	}
	if s.spec == "" {
		s.spec = DefaultOpts.Spec
	}
	if s.delay <= 0 {
		s.delay = sensor.ConversionTime()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start schedules Tick according to the cron spec.
func (s *Station) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("station: already started")
	}
	c := cron.New()
	if _, err := c.AddFunc(s.spec, s.Tick); err != nil {
		return fmt.Errorf("station: cron spec %q: %w", s.spec, err)
	}
	s.log.Info("station: starting", "spec", s.spec)
	c.Start()
	s.cron = c
	return nil
}

// Stop stops the scheduler, abandons the waits of a running cycle and
// returns once it has finished. Transactions already queued still run.
func (s *Station) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
	s.cancel()
	s.wg.Wait()
}

// Skipped returns the number of ticks dropped because a cycle was running.
func (s *Station) Skipped() int64 {
	return s.skipped.Load()
}

// Tick starts a refresh cycle in the background, unless one is running.
func (s *Station) Tick() {
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.log.Debug("station: previous cycle still running, skipping tick")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		if err := s.Cycle(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("station: cycle failed", "err", err)
		}
	}()
}

// Cycle runs one refresh cycle and blocks until it completed.
//
// Bus faults of individual transactions are logged by the drivers and leave
// the previous readings in place; Cycle only fails when it cannot queue work
// or ctx is done.
func (s *Station) Cycle(ctx context.Context) error {
	rtc, err := s.clock.Refresh()
	if err != nil {
		return fmt.Errorf("station: rtc refresh: %w", err)
	}
	trig, err := s.sensor.StartMeasurement()
	if err != nil {
		return fmt.Errorf("station: sensor trigger: %w", err)
	}
	// The conversion starts when the trigger completed.
	if err := trig.Wait(ctx); err != nil && ctx.Err() != nil {
		return err
	}
	if trig.Err() == nil {
		t := time.NewTimer(s.delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
		fetch, err := s.sensor.FetchMeasurement()
		if err != nil {
			return fmt.Errorf("station: sensor fetch: %w", err)
		}
		if err := fetch.Wait(ctx); err != nil && ctx.Err() != nil {
			return err
		}
	}
	if err := rtc.Wait(ctx); err != nil && ctx.Err() != nil {
		return err
	}

	dt, _, _, dtOK := s.clock.Slot().Snapshot()
	env, _, _, envOK := s.sensor.Slot().Snapshot()
	if err := s.out.Render(lines(dt, dtOK, env, envOK)...); err != nil {
		return fmt.Errorf("station: render: %w", err)
	}
	s.log.Debug("station: refreshed", "clock", dt, "env", env)
	if s.pub != nil && dtOK && envOK {
		r := mqttpub.Reading{
			Time:         time.Now().UTC(),
			Clock:        dt.String(),
			TemperatureC: celsius(env.Temperature),
			HumidityPct:  float64(env.Humidity) / float64(physic.PercentRH),
		}
		if err := s.pub.Publish(r); err != nil {
			s.log.Warn("station: publish failed", "err", err)
		}
	}
	return nil
}

func celsius(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Celsius)
}

// lines formats the display content. Readings never stored show dashes.
func lines(dt calendar.DateTime, dtOK bool, env physic.Env, envOK bool) []string {
	l := []string{"--:--:--", "---------- ---", "--.-°C --%"}
	if dtOK {
		l[0] = fmt.Sprintf("%02d:%02d:%02d", dt.Hour, dt.Minute, dt.Second)
		l[1] = fmt.Sprintf("%04d-%02d-%02d %.3s", dt.Year, int(dt.Month), dt.Day, dt.DayOfWeek)
	}
	if envOK {
		l[2] = fmt.Sprintf("%.1f°C %d%%", celsius(env.Temperature), int(env.Humidity/physic.PercentRH))
	}
	return l
}
