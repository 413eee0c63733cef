// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

package partition

import (
	"sync"

	"github.com/axiomhq/hyperloglog"
	"go.uber.org/atomic"
)

// Snapshot is an immutable point-in-time copy of the aggregated bucket
// tallies. Buckets holds an entry for every bucket that has received at
// least one item; buckets that never received an item are absent.
type Snapshot struct {
	Buckets map[uint16]BucketSample
}

// BucketSample holds the tallies captured for a single bucket.
type BucketSample struct {
	// Count is the number of items routed to this bucket.
	Count uint64

	// DistinctEstimate approximates the number of unique items routed
	// to this bucket. Zero when cardinality estimation is disabled.
	DistinctEstimate uint64
}

// Total returns the number of items across all buckets.
func (s Snapshot) Total() uint64 {
	var total uint64
	for _, b := range s.Buckets {
		total += b.Count
	}
	return total
}

// bucketTally is the live per bucket state owned by an aggregator. The
// count is incremented lock free; the distinct estimator has its own
// mutex since the sketch is not safe for concurrent writes.
type bucketTally struct {
	count atomic.Uint64

	mu       sync.Mutex
	distinct *hyperloglog.Sketch
}

func insertHash(to **hyperloglog.Sketch, hash uint64) {
	if *to == nil {
		*to = hyperloglog.New14()
	}
	(*to).InsertHash(hash)
}

func mergeEstimator(to **hyperloglog.Sketch, from *hyperloglog.Sketch) {
	if *to == nil {
		*to = hyperloglog.New14()
	}
	// Ignoring returned error here since the error is only returned if
	// the precision is set outside bounds which is not possible for our case.
	(*to).Merge(from)
}
