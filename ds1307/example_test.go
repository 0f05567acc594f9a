// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds1307_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/GermanBionicSystems/clockenv/ds1307"
	"github.com/GermanBionicSystems/clockenv/i2cmgr"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	// Open default I²C bus.
	bus, err := i2creg.Open("")
	if err != nil {
		log.Fatalf("failed to open I²C: %v", err)
	}
	defer bus.Close()

	// Every driver on the bus goes through the same manager.
	m := i2cmgr.New(bus, nil)
	defer m.Halt()

	ctx := context.Background()
	rtc, err := ds1307.New(ctx, m, nil, nil)
	if err != nil {
		log.Fatal(err)
	}
	if err := rtc.Set(ctx, time.Now()); err != nil {
		log.Fatal(err)
	}

	// Queue a read and wait for it to land in the slot.
	p, err := rtc.Refresh()
	if err != nil {
		log.Fatal(err)
	}
	if err := p.Wait(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("RTC: %s\n", rtc.Slot().Load())
}
