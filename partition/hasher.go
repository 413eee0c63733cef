// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

package partition

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// HashableFunc is a function type that implements Hashable.
type HashableFunc func(xxhash.Digest) xxhash.Digest

// Hash calls HashableFunc function.
func (f HashableFunc) Hash(d xxhash.Digest) xxhash.Digest {
	return f(d)
}

// Hashable represents the hash function interface implemented by values
// that know how to write their canonical byte representation to a digest.
type Hashable interface {
	Hash(xxhash.Digest) xxhash.Digest
}

// Hasher contains a safe to copy digest. The zero value is ready for use
// and is unseeded, so hashes are stable across processes and runs. The
// hash is not cryptographic and must never be used for password storage
// or integrity verification.
type Hasher struct {
	digest xxhash.Digest // xxhash.Digest does not contain pointers and is safe to copy
}

// NewSeededHasher returns a Hasher whose digest is initialized with the
// given seed. Hashers with different seeds produce unrelated bucket
// assignments for the same items.
func NewSeededHasher(seed uint64) Hasher {
	var d xxhash.Digest
	d.ResetWithSeed(seed)
	return Hasher{digest: d}
}

// Chain allows chaining hash functions for Hashable interfaces.
func (h Hasher) Chain(hashable Hashable) Hasher {
	return Hasher{digest: hashable.Hash(h.digest)}
}

// Sum returns the hash for all the chained interfaces.
func (h Hasher) Sum() uint64 {
	return h.digest.Sum64()
}

func stringHasher(s string) Hashable {
	return HashableFunc(func(h xxhash.Digest) xxhash.Digest {
		h.WriteString(s)
		return h
	})
}

func bytesHasher(b []byte) Hashable {
	return HashableFunc(func(h xxhash.Digest) xxhash.Digest {
		h.Write(b)
		return h
	})
}

func uint64Hasher(v uint64) Hashable {
	return HashableFunc(func(h xxhash.Digest) xxhash.Digest {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
		return h
	})
}

func boolHasher(v bool) Hashable {
	return HashableFunc(func(h xxhash.Digest) xxhash.Digest {
		if v {
			h.WriteString("1")
		} else {
			h.WriteString("0")
		}
		return h
	})
}
