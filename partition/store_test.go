// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

package partition

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAdd(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	id := [16]byte{1}
	require.NoError(t, store.Add(id, 3, 10, nil))
	require.NoError(t, store.Add(id, 3, 5, nil))
	require.NoError(t, store.Add(id, 7, 1, nil))

	snap, err := store.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), snap.Total())
	assert.Equal(t, uint64(15), snap.Buckets[3].Count)
	assert.Equal(t, uint64(1), snap.Buckets[7].Count)
}

func TestStoreWorkloadIsolation(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	first := [16]byte{1}
	second := [16]byte{2}
	require.NoError(t, store.Add(first, 0, 10, nil))
	require.NoError(t, store.Add(second, 0, 20, nil))

	snap, err := store.Snapshot(first)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), snap.Total())

	snap, err = store.Snapshot(second)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), snap.Total())
}

func TestStoreMergesAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	id := [16]byte{4, 2}
	ctx := context.Background()

	for run := 0; run < 2; run++ {
		agg, err := New(
			WithPartitions(4),
			WithDataDir(dir),
			WithWorkloadID(id),
		)
		require.NoError(t, err)
		for i := 0; i < 100; i++ {
			require.NoError(t, agg.Ingest(ctx, fmt.Sprintf("Some data - %d", i)))
		}
		require.NoError(t, agg.Close(ctx))
	}

	store, err := OpenStore(dir)
	require.NoError(t, err)
	defer store.Close()

	snap, err := store.Snapshot(id)
	require.NoError(t, err)
	// Both runs ingested the same items, so every bucket holds exactly
	// twice its single run count.
	assert.Equal(t, uint64(200), snap.Total())
}

func TestStorePersistsDistinctEstimates(t *testing.T) {
	dir := t.TempDir()
	id := [16]byte{7}
	ctx := context.Background()

	agg, err := New(
		WithPartitions(2),
		WithDataDir(dir),
		WithWorkloadID(id),
		WithCardinalityEstimation(true),
	)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, agg.Ingest(ctx, "existing_user"))
		require.NoError(t, agg.Ingest(ctx, "new_user"))
	}
	require.NoError(t, agg.Close(ctx))

	store, err := OpenStore(dir)
	require.NoError(t, err)
	defer store.Close()

	snap, err := store.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), snap.Total())
	var distinct uint64
	for _, sample := range snap.Buckets {
		distinct += sample.DistinctEstimate
	}
	assert.InDelta(t, 2, float64(distinct), 1)
}
