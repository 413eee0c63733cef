// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

// Package telemetry holds the logic for emitting telemetry when
// aggregation is performed.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics are a collection of metric instruments recording aggregator
// activity.
type Metrics struct {
	// ItemsTotal is the number of items successfully routed to buckets.
	ItemsTotal metric.Int64Counter

	// ItemsFailed is the number of items that failed canonicalization.
	ItemsFailed metric.Int64Counter

	// FlushesTotal is the number of flushes performed, including the
	// final flush on close.
	FlushesTotal metric.Int64Counter

	// FlushDuration is a histogram of flush durations in seconds.
	FlushDuration metric.Float64Histogram

	registration metric.Registration
}

// NewMetrics returns a new instance of the metrics. The activeBuckets
// callback reports the number of buckets that have received at least
// one item and is observed asynchronously.
func NewMetrics(activeBuckets func() int64, opts ...Option) (*Metrics, error) {
	var err error
	m := &Metrics{}
	cfg := newConfig(opts...)

	meter := cfg.Meter
	m.ItemsTotal, err = meter.Int64Counter(
		"items.ingested.total",
		metric.WithDescription("Total number of items successfully routed to buckets"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric for ingested items: %w", err)
	}
	m.ItemsFailed, err = meter.Int64Counter(
		"items.failed.total",
		metric.WithDescription("Total number of items that could not be canonicalized"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric for failed items: %w", err)
	}
	m.FlushesTotal, err = meter.Int64Counter(
		"flushes.total",
		metric.WithDescription("Total number of tally flushes performed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric for flushes: %w", err)
	}
	m.FlushDuration, err = meter.Float64Histogram(
		"flush.duration",
		metric.WithDescription("Duration of tally flushes"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric for flush duration: %w", err)
	}

	activeBucketsGauge, err := meter.Int64ObservableGauge(
		"buckets.active",
		metric.WithDescription("Number of buckets that have received at least one item"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric for active buckets: %w", err)
	}
	m.registration, err = meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			observer.ObserveInt64(activeBucketsGauge, activeBuckets())
			return nil
		},
		activeBucketsGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register callback for active buckets: %w", err)
	}
	return m, nil
}

// CleanUp unregisters the asynchronous instruments.
func (m *Metrics) CleanUp() error {
	if m.registration == nil {
		return nil
	}
	if err := m.registration.Unregister(); err != nil {
		return fmt.Errorf("failed to unregister callback: %w", err)
	}
	m.registration = nil
	return nil
}
