// Copyright the partition-aggregation contributors. Licensed under the
// Apache License, Version 2.0; you may not use this file except in
// compliance with the Apache License, Version 2.0.

package partition

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnhashableItem is returned when an item has no canonical byte
// representation and therefore cannot be routed to a bucket.
var ErrUnhashableItem = errors.New("item cannot be canonicalized for hashing")

// itemHasher maps an item to the writer of its canonical byte
// representation. The canonicalization rule is fixed so that logically
// equal values always hash identically:
//
//   - strings and byte slices are written as their raw bytes
//   - integers of any width are written as the 8 little-endian bytes of
//     their two's-complement value, so e.g. int32(7) and uint64(7) land
//     in the same bucket
//   - floats are written as the 8 little-endian bytes of their IEEE-754
//     double-precision bit pattern
//   - bools are written as "1" or "0"
//   - values implementing Hashable canonicalize themselves, which is the
//     supported way to hash composite records
//
// Anything else fails with ErrUnhashableItem.
func itemHasher(item any) (Hashable, error) {
	switch v := item.(type) {
	case Hashable:
		return v, nil
	case string:
		return stringHasher(v), nil
	case []byte:
		return bytesHasher(v), nil
	case int:
		return uint64Hasher(uint64(v)), nil
	case int8:
		return uint64Hasher(uint64(v)), nil
	case int16:
		return uint64Hasher(uint64(v)), nil
	case int32:
		return uint64Hasher(uint64(v)), nil
	case int64:
		return uint64Hasher(uint64(v)), nil
	case uint:
		return uint64Hasher(uint64(v)), nil
	case uint8:
		return uint64Hasher(uint64(v)), nil
	case uint16:
		return uint64Hasher(uint64(v)), nil
	case uint32:
		return uint64Hasher(uint64(v)), nil
	case uint64:
		return uint64Hasher(v), nil
	case uintptr:
		return uint64Hasher(uint64(v)), nil
	case float32:
		return uint64Hasher(math.Float64bits(float64(v))), nil
	case float64:
		return uint64Hasher(math.Float64bits(v)), nil
	case bool:
		return boolHasher(v), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnhashableItem, item)
	}
}
