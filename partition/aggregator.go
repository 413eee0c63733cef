// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

// Package partition routes items into a fixed number of hash buckets
// and tallies per bucket item counts.
package partition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/axiomhq/hyperloglog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/shardkit/partition-aggregation/partition/internal/telemetry"
)

// ErrAggregatorClosed means that aggregator was closed when the
// method was called and thus cannot be processed further.
var ErrAggregatorClosed = errors.New("aggregator is closed")

// Aggregator routes a stream of items into hash buckets and maintains a
// running count per bucket. Ingestion may be driven from any number of
// concurrent callers; increments are atomic and none are lost. When a
// data directory is configured the tallies are additionally persisted
// through a pebble backed store, periodically by the flush loop and
// finally on close.
type Aggregator struct {
	cfg     Config
	base    Hasher
	idAttrs attribute.Set

	mu      sync.RWMutex
	tallies []bucketTally

	// lastFlushed tracks the counts already persisted per bucket. It is
	// only touched by the flush paths, which never run concurrently.
	lastFlushed []uint64

	store *Store

	closed          chan struct{}
	flushingStopped chan struct{}

	metrics *telemetry.Metrics
}

// New returns a new aggregator instance.
func New(opts ...Option) (*Aggregator, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregation config: %w", err)
	}

	a := &Aggregator{
		cfg:         cfg,
		base:        NewSeededHasher(cfg.Seed),
		idAttrs:     attribute.NewSet(cfg.WorkloadIDToKVs(cfg.WorkloadID)...),
		tallies:     make([]bucketTally, cfg.Partitioner.Partitions()),
		lastFlushed: make([]uint64, cfg.Partitioner.Partitions()),
		closed:      make(chan struct{}),
	}
	if cfg.DataDir != "" {
		store, err := OpenStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open tally store: %w", err)
		}
		a.store = store
	}

	metrics, err := telemetry.NewMetrics(a.activeBuckets, telemetry.WithMeter(cfg.Meter))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	a.metrics = metrics
	return a, nil
}

// Ingest routes the item to its bucket and increments the bucket's
// count. The bucket assignment is deterministic for a fixed item and
// configuration.
//
// Ingest will return an error if the aggregator has been closed, or if
// the item cannot be canonicalized.
func (a *Aggregator) Ingest(ctx context.Context, item any) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	select {
	case <-a.closed:
		return ErrAggregatorClosed
	default:
	}

	h, err := itemHasher(item)
	if err != nil {
		a.metrics.ItemsFailed.Add(ctx, 1, metric.WithAttributeSet(a.idAttrs))
		return fmt.Errorf("failed to canonicalize item: %w", err)
	}
	hasher := a.base.Chain(h)
	bucket := a.cfg.Partitioner.Partition(hasher)

	tally := &a.tallies[bucket]
	tally.count.Inc()
	if a.cfg.EstimateDistinct {
		tally.mu.Lock()
		insertHash(&tally.distinct, hasher.Sum())
		tally.mu.Unlock()
	}
	a.metrics.ItemsTotal.Add(ctx, 1, metric.WithAttributeSet(a.idAttrs))
	return nil
}

// IngestAll ingests the items in sequence order, stopping at the first
// failure. Counts from items ingested before the failure remain applied
// and are visible via Snapshot.
func (a *Aggregator) IngestAll(ctx context.Context, items ...any) error {
	ctx, span := a.cfg.Tracer.Start(ctx, "IngestAll")
	defer span.End()

	for i, item := range items {
		if err := a.Ingest(ctx, item); err != nil {
			err = fmt.Errorf("failed to ingest item %d of %d: %w", i+1, len(items), err)
			span.RecordError(err)
			return err
		}
	}
	return nil
}

// Snapshot returns an immutable copy of the current bucket counts. Only
// buckets that have received at least one item are present. Snapshot
// never mutates state and remains callable after Close.
//
// By default the snapshot is a single consistent cut: it reflects a
// state strictly before or strictly after each concurrent Ingest. With
// relaxed snapshots configured, ingestion is not blocked and each bucket
// value is still read atomically, but counts of different buckets may
// reflect different instants.
func (a *Aggregator) Snapshot() Snapshot {
	if a.cfg.RelaxedSnapshots {
		a.mu.RLock()
		defer a.mu.RUnlock()
	} else {
		a.mu.Lock()
		defer a.mu.Unlock()
	}
	return a.takeSnapshot()
}

func (a *Aggregator) takeSnapshot() Snapshot {
	snap := Snapshot{Buckets: make(map[uint16]BucketSample)}
	for i := range a.tallies {
		tally := &a.tallies[i]
		count := tally.count.Load()
		if count == 0 {
			continue
		}
		sample := BucketSample{Count: count}
		tally.mu.Lock()
		if tally.distinct != nil {
			sample.DistinctEstimate = tally.distinct.Estimate()
		}
		tally.mu.Unlock()
		snap.Buckets[uint16(i)] = sample
	}
	return snap
}

// StartFlushing starts periodically flushing the bucket tallies to the
// configured store.
//
// StartFlushing may be called at most once, and will return an error if
// it is called a second time, if no data directory is configured, or if
// the aggregator has already been closed.
func (a *Aggregator) StartFlushing() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	select {
	case <-a.closed:
		return ErrAggregatorClosed
	default:
	}
	if a.store == nil {
		return errors.New("flushing requires a data directory")
	}
	if a.flushingStopped != nil {
		return errors.New("flushing already started")
	}
	a.flushingStopped = make(chan struct{})
	go a.flushLoop()
	return nil
}

func (a *Aggregator) flushLoop() {
	defer close(a.flushingStopped)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.closed:
			return
		case <-ticker.C:
		}
		if err := a.flushSnapshot(ctx, a.Snapshot()); err != nil {
			a.cfg.Logger.Warn("failed to flush bucket tallies", zap.Error(err))
		}
	}
}

// flushSnapshot persists the deltas since the previous flush and hands
// the cumulative snapshot to the configured processor. Distinct
// estimator sketches are re-merged whole on every flush, which is
// idempotent.
func (a *Aggregator) flushSnapshot(ctx context.Context, snap Snapshot) error {
	ctx, span := a.cfg.Tracer.Start(ctx, "flush")
	defer span.End()
	start := time.Now()

	var errs []error
	if store := a.store; store != nil {
		for bucket, sample := range snap.Buckets {
			delta := sample.Count - a.lastFlushed[bucket]
			sketch := a.cloneSketch(bucket)
			if delta == 0 && sketch == nil {
				continue
			}
			if err := store.Add(a.cfg.WorkloadID, bucket, delta, sketch); err != nil {
				err = fmt.Errorf("failed to persist tally for bucket %d: %w", bucket, err)
				span.RecordError(err)
				errs = append(errs, err)
				continue
			}
			a.lastFlushed[bucket] = sample.Count
		}
	}
	if a.cfg.Processor != nil {
		if err := a.cfg.Processor(ctx, snap); err != nil {
			err = fmt.Errorf("failed to process snapshot: %w", err)
			span.RecordError(err)
			errs = append(errs, err)
		}
	}
	if metrics := a.metrics; metrics != nil {
		metrics.FlushesTotal.Add(ctx, 1, metric.WithAttributeSet(a.idAttrs))
		metrics.FlushDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributeSet(a.idAttrs))
	}
	return errors.Join(errs...)
}

func (a *Aggregator) cloneSketch(bucket uint16) *hyperloglog.Sketch {
	tally := &a.tallies[bucket]
	tally.mu.Lock()
	defer tally.mu.Unlock()
	if tally.distinct == nil {
		return nil
	}
	return tally.distinct.Clone()
}

// Close stops the flush loop, performs a final flush, and closes the
// underlying store. Close is idempotent; calling it again is not an
// error.
//
// If ctx is cancelled while waiting for the flush loop to stop, Close
// returns without tearing down the store or instrumentation; a later
// Close call completes the teardown.
//
// No further ingestion may be performed after Close is called. Snapshot
// remains callable and returns the last valid counts.
func (a *Aggregator) Close(ctx context.Context) error {
	a.mu.Lock()
	select {
	case <-a.closed:
	default:
		close(a.closed)
	}
	stopped := a.flushingStopped
	// Release the lock while waiting so that an in-flight flush can take
	// its snapshot and let the loop observe the close.
	a.mu.Unlock()

	if stopped != nil {
		select {
		case <-ctx.Done():
			// The loop may still be inside a flush. Leave the store and
			// instrumentation in place so a later Close can finish the
			// teardown once the loop has stopped.
			return fmt.Errorf("context cancelled while waiting for flushing to stop: %w", ctx.Err())
		case <-stopped:
		}
	}

	var errs []error

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		if err := a.flushSnapshot(ctx, a.takeSnapshot()); err != nil {
			errs = append(errs, fmt.Errorf("failed to perform final flush: %w", err))
		}
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close tally store: %w", err))
		}
		a.store = nil
	}
	if a.metrics != nil {
		if err := a.metrics.CleanUp(); err != nil {
			errs = append(errs, fmt.Errorf("failed to cleanup instrumentation: %w", err))
		}
		a.metrics = nil
	}
	return errors.Join(errs...)
}

func (a *Aggregator) activeBuckets() int64 {
	var n int64
	for i := range a.tallies {
		if a.tallies[i].count.Load() > 0 {
			n++
		}
	}
	return n
}
