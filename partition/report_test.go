// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReportEmpty(t *testing.T) {
	var snap Snapshot
	assert.Equal(t, LoadReport{}, snap.Report())
}

func TestReportUniform(t *testing.T) {
	snap := Snapshot{Buckets: map[uint16]BucketSample{
		0: {Count: 100},
		1: {Count: 100},
		2: {Count: 100},
		3: {Count: 100},
	}}

	report := snap.Report()
	assert.Equal(t, 4, report.Buckets)
	assert.Equal(t, uint64(400), report.TotalItems)
	assert.InDelta(t, 100, report.Mean, 1)
	assert.InDelta(t, 100, float64(report.Median), 1)
	assert.InDelta(t, 100, float64(report.Max), 1)
	assert.InDelta(t, 1, report.Skew, 0.05)
}

func TestReportSkewed(t *testing.T) {
	snap := Snapshot{Buckets: map[uint16]BucketSample{
		0: {Count: 1000},
		1: {Count: 10},
	}}

	report := snap.Report()
	assert.Equal(t, 2, report.Buckets)
	assert.Equal(t, uint64(1010), report.TotalItems)
	assert.Greater(t, report.Skew, 1.5)
	assert.GreaterOrEqual(t, report.Max, report.Median)
	assert.GreaterOrEqual(t, report.P99, report.Median)
}

func TestReportSingleItem(t *testing.T) {
	snap := Snapshot{Buckets: map[uint16]BucketSample{
		5: {Count: 1},
	}}

	report := snap.Report()
	assert.Equal(t, 1, report.Buckets)
	assert.Equal(t, uint64(1), report.TotalItems)
	assert.Equal(t, uint64(1), report.Max)
}
