// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

package partition

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "partition"

// Processor defines handling of the cumulative snapshot at every flush.
type Processor func(ctx context.Context, snap Snapshot) error

// Partitioner routes a hashed item to one of a fixed number of buckets.
type Partitioner interface {
	Partition(Hasher) uint16
	Partitions() uint16
}

// Config contains the required config for running the aggregator.
type Config struct {
	Partitioner      Partitioner
	Seed             uint64
	DataDir          string
	WorkloadID       [16]byte
	WorkloadIDToKVs  func([16]byte) []attribute.KeyValue
	FlushInterval    time.Duration
	Processor        Processor
	EstimateDistinct bool
	RelaxedSnapshots bool

	Meter  metric.Meter
	Tracer trace.Tracer
	Logger *zap.Logger
}

// Option allows configuring aggregator based on functional options.
type Option func(Config) Config

// NewConfig creates a new aggregator config based on the passed options.
func NewConfig(opts ...Option) (Config, error) {
	cfg := defaultCfg()
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return cfg, validateCfg(cfg)
}

// WithPartitioner configures the partitioner routing items to buckets.
// The aggregator canonicalizes and hashes items itself, seeded via
// WithSeed; the partitioner only reduces the hash to a bucket ID.
func WithPartitioner(partitioner Partitioner) Option {
	return func(c Config) Config {
		c.Partitioner = partitioner
		return c
	}
}

// WithPartitions configures a hash partitioner routing items into n
// buckets. The partition count is validated when the aggregator is
// created.
func WithPartitions(n uint16) Option {
	return func(c Config) Config {
		c.Partitioner = &HashPartitioner{partitions: n, base: NewSeededHasher(0)}
		return c
	}
}

// WithSeed configures the seed used to initialize item hash digests.
// The default seed is zero; bucket assignment is stable across processes
// for a fixed seed.
func WithSeed(seed uint64) Option {
	return func(c Config) Config {
		c.Seed = seed
		return c
	}
}

// WithDataDir configures the data directory used to persist bucket
// tallies. When set, the aggregator opens a store at this directory and
// flushes tallies to it periodically and on close.
func WithDataDir(dataDir string) Option {
	return func(c Config) Config {
		c.DataDir = dataDir
		return c
	}
}

// WithWorkloadID configures the identity under which tallies are
// persisted. Multiple aggregator runs with the same workload ID
// accumulate into the same persisted tallies.
func WithWorkloadID(id [16]byte) Option {
	return func(c Config) Config {
		c.WorkloadID = id
		return c
	}
}

// WithWorkloadIDToKVs defines a function that converts a workload ID to
// zero or more attribute.KeyValue for telemetry.
func WithWorkloadIDToKVs(f func([16]byte) []attribute.KeyValue) Option {
	return func(c Config) Config {
		c.WorkloadIDToKVs = f
		return c
	}
}

// WithFlushInterval configures how often the flush loop persists bucket
// tallies once StartFlushing is called.
func WithFlushInterval(ivl time.Duration) Option {
	return func(c Config) Config {
		c.FlushInterval = ivl
		return c
	}
}

// WithProcessor configures the processor for handling of the cumulative
// snapshot at every flush. Requires a data directory since the processor
// is driven by the flush pipeline.
func WithProcessor(processor Processor) Option {
	return func(c Config) Config {
		c.Processor = processor
		return c
	}
}

// WithCardinalityEstimation enables per bucket distinct item estimation.
// Estimates are approximate and add a small per-ingest cost.
func WithCardinalityEstimation(enabled bool) Option {
	return func(c Config) Config {
		c.EstimateDistinct = enabled
		return c
	}
}

// WithRelaxedSnapshots makes Snapshot take a shared lock instead of an
// exclusive one. Relaxed snapshots never block ingestion and every
// individual bucket count is still read atomically, but the snapshot is
// no longer guaranteed to be a single consistent cut across buckets.
func WithRelaxedSnapshots(enabled bool) Option {
	return func(c Config) Config {
		c.RelaxedSnapshots = enabled
		return c
	}
}

// WithMeter defines a custom meter which will be used for collecting
// telemetry. Defaults to the meter provided by global provider.
func WithMeter(meter metric.Meter) Option {
	return func(c Config) Config {
		c.Meter = meter
		return c
	}
}

// WithTracer defines a custom tracer which will be used for collecting
// traces. Defaults to the tracer provided by global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(c Config) Config {
		c.Tracer = tracer
		return c
	}
}

// WithLogger defines a custom logger to be used by aggregator.
func WithLogger(logger *zap.Logger) Option {
	return func(c Config) Config {
		c.Logger = logger
		return c
	}
}

func defaultCfg() Config {
	return Config{
		Partitioner:     &HashPartitioner{partitions: 1, base: NewSeededHasher(0)},
		FlushInterval:   time.Minute,
		WorkloadIDToKVs: func(_ [16]byte) []attribute.KeyValue { return nil },
		Meter:           otel.Meter(instrumentationName),
		Tracer:          otel.Tracer(instrumentationName),
		Logger:          zap.Must(zap.NewDevelopment()),
	}
}

func validateCfg(cfg Config) error {
	if cfg.Partitioner == nil {
		return errors.New("partitioner is required")
	}
	if cfg.Partitioner.Partitions() < 1 {
		return ErrInvalidPartitionCount
	}
	if cfg.FlushInterval < time.Second {
		return errors.New("flush interval less than one second is not supported")
	}
	if cfg.Processor != nil && cfg.DataDir == "" {
		return errors.New("processor requires a data directory")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}
