// Package kvstore implements the durable key-value layer: typed
// get/set-with-TTL/delete, and compare-and-swap for the racy state
// transitions other subsystems build on (task claims, nonce marks).
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no live (unexpired) value.
var ErrNotFound = errors.New("kvstore: not found")

// ErrCASMismatch is returned when CompareAndSwap's expected value doesn't
// match the key's current value.
var ErrCASMismatch = errors.New("kvstore: compare-and-swap mismatch")

// Store is the contract every backend (memory, sqlite, redis) satisfies.
// Values are opaque byte strings; callers own their own encoding.
type Store interface {
	// Get returns the value for key, or ErrNotFound if absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value for key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. It is not an error if key does not exist.
	Delete(ctx context.Context, key string) error

	// CompareAndSwap atomically replaces key's value with newValue, but only
	// if the current value equals expected. If the key is absent, expected
	// must be nil for the swap to succeed (CAS-create semantics). Returns
	// ErrCASMismatch if the current value differs from expected.
	CompareAndSwap(ctx context.Context, key string, expected, newValue []byte, ttl time.Duration) error

	// Close releases any underlying resources.
	Close() error
}
