// Package store provides the shared key/value handle used for cross-process
// credential bookkeeping (usage counters, locks, cooldowns). All slot state
// mutations go through a Store implementation rather than in-process memory so
// that multiple independently deployed instances can safely share one
// credential pool.
package store

import (
	"context"
	"time"
)

// Store is a minimal TTL-aware key/value abstraction with the compare-and-set
// primitives needed for distributed lock acquisition and release.
//
// Semantics:
//   - A zero TTL means the entry never expires.
//   - Expired entries behave exactly like absent entries for every operation.
//   - SetIfAbsent and the compare operations must be atomic with respect to
//     concurrent callers, including callers in other processes for shared
//     implementations.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set unconditionally writes key=value with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetIfAbsent writes key=value only if the key does not exist.
	// Returns true if the write happened.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndSwap replaces the value only if the current value equals old.
	// Returns true if the swap happened.
	CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error)

	// CompareAndDelete removes the key only if the current value equals expect.
	// Returns true if the delete happened.
	CompareAndDelete(ctx context.Context, key, expect string) (bool, error)

	// IncrBy atomically adds delta to the integer value stored at key,
	// treating an absent key as zero, and returns the new value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
