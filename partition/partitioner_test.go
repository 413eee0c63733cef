// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHashPartitionerInvalidCount(t *testing.T) {
	p, err := NewHashPartitioner(0)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrInvalidPartitionCount)

	p, err = NewSeededHashPartitioner(0, 1)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrInvalidPartitionCount)
}

func TestPartitionRangeBound(t *testing.T) {
	for _, partitions := range []uint16{1, 2, 3, 10, 17, 1024} {
		p, err := NewHashPartitioner(partitions)
		require.NoError(t, err)
		for i := 0; i < 1000; i++ {
			bucket, err := p.PartitionItem(fmt.Sprintf("Some data - %d", i))
			require.NoError(t, err)
			assert.Less(t, bucket, partitions)
		}
	}
}

func TestPartitionItemDeterminism(t *testing.T) {
	a, err := NewHashPartitioner(10)
	require.NoError(t, err)
	b, err := NewHashPartitioner(10)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		item := fmt.Sprintf("Some data - %d", i)
		first, err := a.PartitionItem(item)
		require.NoError(t, err)
		second, err := a.PartitionItem(item)
		require.NoError(t, err)
		other, err := b.PartitionItem(item)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, first, other)
	}
}

func TestSeededPartitioner(t *testing.T) {
	seeded, err := NewSeededHashPartitioner(16, 1)
	require.NoError(t, err)
	same, err := NewSeededHashPartitioner(16, 1)
	require.NoError(t, err)
	other, err := NewSeededHashPartitioner(16, 2)
	require.NoError(t, err)

	var differs bool
	for i := 0; i < 100; i++ {
		item := fmt.Sprintf("Some data - %d", i)
		a, err := seeded.PartitionItem(item)
		require.NoError(t, err)
		b, err := same.PartitionItem(item)
		require.NoError(t, err)
		c, err := other.PartitionItem(item)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		if a != c {
			differs = true
		}
	}
	assert.True(t, differs, "different seeds should produce different assignments for some items")
}

func TestPartitionItemUnhashable(t *testing.T) {
	p, err := NewHashPartitioner(10)
	require.NoError(t, err)
	_, err = p.PartitionItem(struct{}{})
	assert.ErrorIs(t, err, ErrUnhashableItem)
}
