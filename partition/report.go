// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

package partition

import (
	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
)

// LoadReport summarizes how evenly items are spread across buckets. It
// is a sanity check on hash uniformity, not an exact distribution claim.
type LoadReport struct {
	// Buckets is the number of buckets with at least one item.
	Buckets int

	// TotalItems is the number of items across all buckets.
	TotalItems uint64

	// Mean, Median, P99 and Max describe the per bucket item counts.
	Mean   float64
	Median uint64
	P99    uint64
	Max    uint64

	// Skew is the ratio of the largest bucket count to the mean bucket
	// count. A perfectly uniform distribution has a skew of 1.
	Skew float64
}

// Report computes load distribution statistics over the snapshot.
func (s Snapshot) Report() LoadReport {
	var r LoadReport
	var max uint64
	for _, b := range s.Buckets {
		r.TotalItems += b.Count
		if b.Count > max {
			max = b.Count
		}
	}
	r.Buckets = len(s.Buckets)
	if r.Buckets == 0 {
		return r
	}

	// The histogram needs a trackable range of at least [1, 2].
	highest := int64(max)
	if highest < 2 {
		highest = 2
	}
	h := hdrhistogram.New(1, highest, 3)
	for _, b := range s.Buckets {
		// Counts are at least 1 and at most max, always within range.
		_ = h.RecordValue(int64(b.Count))
	}

	r.Mean = h.Mean()
	r.Median = uint64(h.ValueAtQuantile(50))
	r.P99 = uint64(h.ValueAtQuantile(99))
	r.Max = uint64(h.Max())
	if r.Mean > 0 {
		r.Skew = float64(max) / r.Mean
	}
	return r
}
