// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

package partition

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/axiomhq/hyperloglog"
)

// BucketKey identifies the persisted tally for one bucket of one
// workload.
type BucketKey struct {
	WorkloadID [16]byte
	Bucket     uint16
}

// MarshalBinaryToSizedBuffer marshals the bucket key into its binary
// representation. The encoded byte slice is used as a key in pebble. The
// first 16 bytes are the workload ID and the last 2 bytes the big-endian
// bucket ID, so all buckets of a workload sort contiguously and can be
// read with a single range scan.
func (k BucketKey) MarshalBinaryToSizedBuffer(data []byte) error {
	if len(data) != k.SizeBinary() {
		return errors.New("failed to marshal due to incorrect sized buffer")
	}
	var offset int

	copy(data[offset:], k.WorkloadID[:])
	offset += len(k.WorkloadID)

	binary.BigEndian.PutUint16(data[offset:], k.Bucket)
	return nil
}

// UnmarshalBinary converts the byte encoded data into a BucketKey.
func (k *BucketKey) UnmarshalBinary(data []byte) error {
	if len(data) != k.SizeBinary() {
		return errors.New("invalid encoded data of incorrect length")
	}
	var offset int

	copy(k.WorkloadID[:], data[offset:offset+len(k.WorkloadID)])
	offset += len(k.WorkloadID)

	k.Bucket = binary.BigEndian.Uint16(data[offset:])
	return nil
}

// SizeBinary returns the size of the byte array required to encode the
// bucket key.
func (k BucketKey) SizeBinary() int {
	// 16 bytes for workload ID encoding
	// 2 bytes for bucket ID
	return 16 + 2
}

// bucketTallyValue is the stored value for a bucket: an item count and
// an optional distinct item estimator.
type bucketTallyValue struct {
	Count    uint64
	Distinct *hyperloglog.Sketch
}

// MarshalBinary encodes the tally as an 8 byte big-endian count followed
// by the sketch bytes, if any.
func (v *bucketTallyValue) MarshalBinary() ([]byte, error) {
	hll := hllBytes(v.Distinct)
	data := make([]byte, 8+len(hll))
	binary.BigEndian.PutUint64(data, v.Count)
	copy(data[8:], hll)
	return data, nil
}

// UnmarshalBinary converts the byte encoded data into a bucketTallyValue.
func (v *bucketTallyValue) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return errors.New("invalid encoded data of insufficient length")
	}
	v.Count = binary.BigEndian.Uint64(data[:8])
	if len(data) > 8 {
		s := &hyperloglog.Sketch{}
		if err := s.UnmarshalBinary(data[8:]); err != nil {
			return fmt.Errorf("failed to unmarshal distinct estimator: %w", err)
		}
		v.Distinct = s
	}
	return nil
}

func (v *bucketTallyValue) merge(from *bucketTallyValue) {
	v.Count += from.Count
	if from.Distinct != nil {
		mergeEstimator(&v.Distinct, from.Distinct)
	}
}

func hllBytes(s *hyperloglog.Sketch) []byte {
	if s == nil {
		return nil
	}
	// Ignoring returned error here since MarshalBinary never fails.
	b, _ := s.MarshalBinary()
	return b
}
