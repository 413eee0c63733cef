// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "partition"
)

type config struct {
	Meter metric.Meter

	MeterProvider metric.MeterProvider
}

// Option interface is used to configure optional config options.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (o optionFunc) apply(c *config) {
	o(c)
}

func newConfig(opts ...Option) *config {
	c := &config{
		MeterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt.apply(c)
	}

	if c.Meter == nil {
		c.Meter = c.MeterProvider.Meter(instrumentationName)
	}

	return c
}

// WithMeterProvider configures a provider to use for creating a meter.
// If nil or no provider is passed then the global provider is used.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return optionFunc(func(cfg *config) {
		if provider != nil {
			cfg.MeterProvider = provider
		}
	})
}

// WithMeter configures the meter used to create the instruments. If nil
// or no meter is passed then a meter from the provider is used.
func WithMeter(meter metric.Meter) Option {
	return optionFunc(func(cfg *config) {
		if meter != nil {
			cfg.Meter = meter
		}
	})
}
