// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

package partition

import (
	"bytes"
	"testing"

	"github.com/axiomhq/hyperloglog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketKeyOrdering(t *testing.T) {
	// All buckets of a workload must sort contiguously so that a single
	// range scan reads a workload's full tally set.
	id := [16]byte{1}
	other := [16]byte{2}

	encode := func(k BucketKey) []byte {
		data := make([]byte, k.SizeBinary())
		require.NoError(t, k.MarshalBinaryToSizedBuffer(data))
		return data
	}

	low := encode(BucketKey{WorkloadID: id, Bucket: 0})
	mid := encode(BucketKey{WorkloadID: id, Bucket: 255})
	high := encode(BucketKey{WorkloadID: id, Bucket: 65535})
	foreign := encode(BucketKey{WorkloadID: other, Bucket: 0})

	assert.Negative(t, bytes.Compare(low, mid))
	assert.Negative(t, bytes.Compare(mid, high))
	assert.Negative(t, bytes.Compare(high, foreign))
}

func TestBucketKeyRoundtrip(t *testing.T) {
	key := BucketKey{WorkloadID: [16]byte{0xab, 0x01}, Bucket: 4242}
	data := make([]byte, key.SizeBinary())
	require.NoError(t, key.MarshalBinaryToSizedBuffer(data))

	var decoded BucketKey
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, key, decoded)

	assert.Error(t, key.MarshalBinaryToSizedBuffer(make([]byte, 4)))
	assert.Error(t, decoded.UnmarshalBinary(data[:4]))
}

func TestBucketTallyValueMerge(t *testing.T) {
	a := hyperloglog.New14()
	a.InsertHash(1)
	a.InsertHash(2)

	to := bucketTallyValue{Count: 10, Distinct: a}
	from := bucketTallyValue{Count: 5}
	to.merge(&from)
	assert.Equal(t, uint64(15), to.Count)

	data, err := to.MarshalBinary()
	require.NoError(t, err)

	var decoded bucketTallyValue
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, uint64(15), decoded.Count)
	require.NotNil(t, decoded.Distinct)
	assert.Equal(t, uint64(2), decoded.Distinct.Estimate())

	assert.Error(t, decoded.UnmarshalBinary(data[:4]))
}
