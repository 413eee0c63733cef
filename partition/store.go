// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

package partition

import (
	"errors"
	"fmt"
	"io"

	"github.com/axiomhq/hyperloglog"
	"github.com/cockroachdb/pebble"
)

// Store persists bucket tallies in pebble. Deltas written for the same
// workload and bucket are combined by a merge operator, so tallies
// accumulate across flushes and across aggregator runs.
type Store struct {
	db           *pebble.DB
	writeOptions *pebble.WriteOptions
}

// OpenStore opens the tally store at dir, creating it if needed.
func OpenStore(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		Merger: &pebble.Merger{
			Name: "bucket_tally_merger",
			Merge: func(_, value []byte) (pebble.ValueMerger, error) {
				var merger bucketTallyMerger
				if err := merger.tally.UnmarshalBinary(value); err != nil {
					return nil, err
				}
				return &merger, nil
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}
	return &Store{db: db, writeOptions: pebble.Sync}, nil
}

// Add merges a delta into the persisted tally for the given bucket of
// the given workload. The distinct estimator may be nil; when non nil it
// is merged into the persisted estimator, which is idempotent for
// repeated merges of the same sketch.
func (s *Store) Add(id [16]byte, bucket uint16, count uint64, distinct *hyperloglog.Sketch) error {
	k := BucketKey{WorkloadID: id, Bucket: bucket}
	key := make([]byte, k.SizeBinary())
	if err := k.MarshalBinaryToSizedBuffer(key); err != nil {
		return fmt.Errorf("failed to marshal bucket key: %w", err)
	}
	v := bucketTallyValue{Count: count, Distinct: distinct}
	value, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal bucket tally: %w", err)
	}
	if err := s.db.Merge(key, value, s.writeOptions); err != nil {
		return fmt.Errorf("failed to merge bucket tally: %w", err)
	}
	return nil
}

// Snapshot reads the persisted tallies for the given workload ID.
func (s *Store) Snapshot(id [16]byte) (Snapshot, error) {
	out := Snapshot{Buckets: make(map[uint16]BucketSample)}

	lk := BucketKey{WorkloadID: id}
	lb := make([]byte, lk.SizeBinary())
	if err := lk.MarshalBinaryToSizedBuffer(lb); err != nil {
		return out, fmt.Errorf("failed to marshal lower bound key: %w", err)
	}
	// The upper bound is exclusive, so extend the largest possible key
	// of this workload by one zero byte.
	ub := make([]byte, 0, lk.SizeBinary()+1)
	ub = append(ub, id[:]...)
	ub = append(ub, 0xff, 0xff, 0x00)

	snap := s.db.NewSnapshot()
	defer snap.Close()

	iter, err := snap.NewIter(&pebble.IterOptions{
		LowerBound: lb,
		UpperBound: ub,
		KeyTypes:   pebble.IterKeyTypePointsOnly,
	})
	if err != nil {
		return out, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var errs []error
	for iter.First(); iter.Valid(); iter.Next() {
		var k BucketKey
		if err := k.UnmarshalBinary(iter.Key()); err != nil {
			errs = append(errs, fmt.Errorf("failed to unmarshal key: %w", err))
			continue
		}
		var v bucketTallyValue
		if err := v.UnmarshalBinary(iter.Value()); err != nil {
			errs = append(errs, fmt.Errorf("failed to unmarshal tally for bucket %d: %w", k.Bucket, err))
			continue
		}
		sample := BucketSample{Count: v.Count}
		if v.Distinct != nil {
			sample.DistinctEstimate = v.Distinct.Estimate()
		}
		out.Buckets[k.Bucket] = sample
	}
	return out, errors.Join(errs...)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// bucketTallyMerger combines persisted tally values for one bucket by
// adding counts and merging distinct estimators. Addition commutes, so
// newer and older values are merged identically.
type bucketTallyMerger struct {
	tally bucketTallyValue
}

func (m *bucketTallyMerger) MergeNewer(value []byte) error {
	var from bucketTallyValue
	if err := from.UnmarshalBinary(value); err != nil {
		return err
	}
	m.tally.merge(&from)
	return nil
}

func (m *bucketTallyMerger) MergeOlder(value []byte) error {
	var from bucketTallyValue
	if err := from.UnmarshalBinary(value); err != nil {
		return err
	}
	m.tally.merge(&from)
	return nil
}

func (m *bucketTallyMerger) Finish(includesBase bool) ([]byte, io.Closer, error) {
	data, err := m.tally.MarshalBinary()
	return data, nil, err
}
