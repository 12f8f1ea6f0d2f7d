// Package store provides the on-device durable key-value persistence backing
// the sync core. Keys are arbitrary strings; values are opaque string blobs
// (the storage service serializes JSON into them).
package store

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// KV is the persistence capability the sync core depends on. A missing key
// is not an error: Get reports presence via its second return value.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set durably writes value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Keys returns all stored keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
