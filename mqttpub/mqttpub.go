// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mqttpub publishes station readings as JSON to an MQTT broker.
package mqttpub

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Reading is the JSON payload of one refresh cycle.
type Reading struct {
	Time         time.Time `json:"time"`
	Clock        string    `json:"clock"`
	TemperatureC float64   `json:"temperature_c"`
	HumidityPct  float64   `json:"humidity_pct"`
}

// Opts holds the configuration options for the publisher.
type Opts struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	// Timeout bounds connecting and every publish. Default is 10s.
	Timeout time.Duration
	// StoreDir, if set, keeps unacknowledged messages on disk so they survive
	// a restart.
	StoreDir string
	Logger   *slog.Logger
}

// DefaultOpts holds the default configuration options for the publisher.
var DefaultOpts = Opts{
	ClientID: "envclock",
	Topic:    "envclock/readings",
	QoS:      1,
	Timeout:  10 * time.Second,
}

// Publisher sends Readings on one topic.
type Publisher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
	log     *slog.Logger
}

// Connect dials the broker and returns a Publisher on it.
func Connect(opts *Opts) (*Publisher, error) {
	o := fill(opts)
	if o.Broker == "" {
		return nil, errors.New("mqttpub: no broker")
	}
	log := o.Logger
	co := mqtt.NewClientOptions()
	co.AddBroker(o.Broker)
	co.SetClientID(o.ClientID)
	co.SetConnectTimeout(o.Timeout)
	co.SetAutoReconnect(true)
	if o.StoreDir != "" {
		co.SetStore(mqtt.NewFileStore(o.StoreDir))
	}
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqttpub: connection lost", "broker", o.Broker, "err", err)
	})
	c := mqtt.NewClient(co)
	if err := wait(c.Connect(), o.Timeout); err != nil {
		return nil, fmt.Errorf("mqttpub: connect %s: %w", o.Broker, err)
	}
	return New(c, &o), nil
}

// New returns a Publisher on an already connected client.
func New(c mqtt.Client, opts *Opts) *Publisher {
	o := fill(opts)
	return &Publisher{client: c, topic: o.Topic, qos: o.QoS, timeout: o.Timeout, log: o.Logger}
}

func fill(opts *Opts) Opts {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.ClientID == "" {
		o.ClientID = DefaultOpts.ClientID
	}
	if o.Topic == "" {
		o.Topic = DefaultOpts.Topic
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultOpts.Timeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func wait(t mqtt.Token, d time.Duration) error {
	if !t.WaitTimeout(d) {
		return fmt.Errorf("timed out after %v", d)
	}
	return t.Error()
}

// Publish sends r and waits for the broker to acknowledge it.
func (p *Publisher) Publish(r Reading) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("mqttpub: %w", err)
	}
	if err := wait(p.client.Publish(p.topic, p.qos, false, b), p.timeout); err != nil {
		return fmt.Errorf("mqttpub: publish %s: %w", p.topic, err)
	}
	p.log.Debug("mqttpub: published", "topic", p.topic, "bytes", len(b))
	return nil
}

// Close disconnects from the broker, giving in-flight messages 250ms.
func (p *Publisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

func (p *Publisher) String() string {
	return "mqttpub(" + p.topic + ")"
}
