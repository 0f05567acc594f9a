// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// envclock shows the time of a DS1307 real time clock and the readings of an
// HDC1080 temperature/humidity sensor on an SSD1306 OLED, all sharing one
// I²C bus. Readings can optionally be published over MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GermanBionicSystems/clockenv/ds1307"
	"github.com/GermanBionicSystems/clockenv/hdc1080"
	"github.com/GermanBionicSystems/clockenv/i2cmgr"
	"github.com/GermanBionicSystems/clockenv/mqttpub"
	"github.com/GermanBionicSystems/clockenv/panel"
	"github.com/GermanBionicSystems/clockenv/station"
	homedir "github.com/mitchellh/go-homedir"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/host/v3"
)

var (
	busName   = flag.String("bus", "", "I²C bus to use")
	screen    = flag.String("display", "ssd1306", "display to use: ssd1306 or console")
	width     = flag.Int("width", 128, "display width")
	height    = flag.Int("height", 64, "display height")
	ttf       = flag.Float64("ttf", 0, "render with the Go Regular TrueType font at this size instead of the bitmap font")
	set       = flag.String("set", "", `set the clock: "now" or an RFC 3339 time`)
	cronSpec  = flag.String("cron", station.DefaultOpts.Spec, "cron spec of the refresh")
	once      = flag.Bool("once", false, "refresh once and exit")
	tempRes   = flag.Int("tres", 14, "temperature resolution in bits: 11 or 14")
	humRes    = flag.Int("hres", 14, "humidity resolution in bits: 8, 11 or 14")
	heater    = flag.Bool("heater", false, "enable the sensor heater")
	pngPath   = flag.String("png", "", "save the last frame as PNG to this path on exit")
	broker    = flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883; empty disables publishing")
	topic     = flag.String("topic", mqttpub.DefaultOpts.Topic, "MQTT topic")
	mqttStore = flag.String("mqttstore", "", "directory keeping unacknowledged MQTT messages")
	verbose   = flag.Bool("v", false, "verbose logging")
)

func resolutions() (hdc1080.TemperatureResolution, hdc1080.HumidityResolution, error) {
	var t hdc1080.TemperatureResolution
	switch *tempRes {
	case 14:
		t = hdc1080.Temperature14Bit
	case 11:
		t = hdc1080.Temperature11Bit
	default:
		return 0, 0, fmt.Errorf("invalid temperature resolution %d", *tempRes)
	}
	var h hdc1080.HumidityResolution
	switch *humRes {
	case 14:
		h = hdc1080.Humidity14Bit
	case 11:
		h = hdc1080.Humidity11Bit
	case 8:
		h = hdc1080.Humidity8Bit
	default:
		return 0, 0, fmt.Errorf("invalid humidity resolution %d", *humRes)
	}
	return t, h, nil
}

func setClock(ctx context.Context, rtc *ds1307.Dev, v string) error {
	t := time.Now()
	if v != "now" {
		var err error
		if t, err = time.Parse(time.RFC3339, v); err != nil {
			return err
		}
	}
	return rtc.Set(ctx, t)
}

func openDisplay(m *i2cmgr.Manager) (display.Drawer, error) {
	switch *screen {
	case "ssd1306":
		opts := ssd1306.DefaultOpts
		opts.W = *width
		opts.H = *height
		if opts.H == 32 {
			opts.Sequential = true
		}
		return ssd1306.NewI2C(m.Bus(), &opts)
	case "console":
		return panel.NewConsole(&panel.ConsoleOpts{W: *width, H: *height}), nil
	default:
		return nil, fmt.Errorf("unknown display %q", *screen)
	}
}

func mainImpl() error {
	flag.Parse()
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	tr, hr, err := resolutions()
	if err != nil {
		return err
	}

	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}
	bus, err := i2creg.Open(*busName)
	if err != nil {
		return fmt.Errorf("failed to open I²C: %w", err)
	}
	defer bus.Close()

	m := i2cmgr.New(bus, nil)
	defer m.Halt()

	ctx := context.Background()
	rtc, err := ds1307.New(ctx, m, nil, nil)
	if err != nil {
		return err
	}
	if *set != "" {
		if err := setClock(ctx, rtc, *set); err != nil {
			return fmt.Errorf("failed to set the clock: %w", err)
		}
	}
	sensor, err := hdc1080.New(ctx, m, nil, &hdc1080.Opts{Temperature: tr, Humidity: hr, Heater: *heater})
	if err != nil {
		return err
	}
	if mfg, id, err := sensor.ReadIDs(ctx); err != nil {
		return err
	} else if mfg != hdc1080.ManufacturerTI || id != hdc1080.DeviceHDC1080 {
		slog.Warn("unexpected sensor IDs", "manufacturer", fmt.Sprintf("%#04x", mfg), "device", fmt.Sprintf("%#04x", id))
	}

	dev, err := openDisplay(m)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	var popts panel.Opts
	if *ttf > 0 {
		if popts.Face, err = panel.TrueTypeFace(*ttf); err != nil {
			return err
		}
	}
	p := panel.New(dev, &popts)
	defer p.Halt()
	if *pngPath != "" {
		path, err := homedir.Expand(*pngPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := p.SavePNG(path); err != nil {
				slog.Error("failed to save frame", "err", err)
			}
		}()
	}

	var pub station.Publisher
	if *broker != "" {
		store, err := homedir.Expand(*mqttStore)
		if err != nil {
			return err
		}
		mp, err := mqttpub.Connect(&mqttpub.Opts{Broker: *broker, Topic: *topic, QoS: 1, StoreDir: store})
		if err != nil {
			return err
		}
		defer mp.Close()
		pub = mp
	}

	s := station.New(rtc, sensor, p, pub, &station.Opts{Spec: *cronSpec})
	if *once {
		defer s.Stop()
		return s.Cycle(ctx)
	}
	if err := s.Start(); err != nil {
		return err
	}
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	slog.Info("cleaning up")
	s.Stop()
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		log.Fatalf("envclock: %v", err)
	}
}
