// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

package partition

import "errors"

// ErrInvalidPartitionCount is returned when a partitioner is constructed
// with zero partitions. Negative partition counts are unrepresentable by
// the uint16 type.
var ErrInvalidPartitionCount = errors.New("partition count must be at least 1")

// HashPartitioner is a hash based partitioner. The partitioner routes
// items into buckets with the number of buckets limited by the passed
// argument.
type HashPartitioner struct {
	partitions uint16
	base       Hasher
}

// NewHashPartitioner creates a new instance of the HashPartitioner.
func NewHashPartitioner(partitions uint16) (*HashPartitioner, error) {
	return NewSeededHashPartitioner(partitions, 0)
}

// NewSeededHashPartitioner creates a HashPartitioner whose hash digests
// are initialized with the given seed. The seed is an explicit parameter;
// partitioners never draw ambient entropy, so bucket assignment is stable
// across processes for a fixed seed.
func NewSeededHashPartitioner(partitions uint16, seed uint64) (*HashPartitioner, error) {
	if partitions < 1 {
		return nil, ErrInvalidPartitionCount
	}
	return &HashPartitioner{partitions: partitions, base: NewSeededHasher(seed)}, nil
}

// Partitions returns the number of buckets items are routed into.
func (p *HashPartitioner) Partitions() uint16 {
	return p.partitions
}

// Partition generates an ID to be used as bucket ID given a hash of the item.
func (p *HashPartitioner) Partition(hasher Hasher) uint16 {
	return uint16(hasher.Sum() % uint64(p.partitions))
}

// PartitionItem canonicalizes the item and returns the ID of the bucket
// it is routed to. The result is deterministic for a fixed item and
// partition count.
func (p *HashPartitioner) PartitionItem(item any) (uint16, error) {
	h, err := itemHasher(item)
	if err != nil {
		return 0, err
	}
	return p.Partition(p.base.Chain(h)), nil
}
