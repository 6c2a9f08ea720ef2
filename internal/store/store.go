// Package store provides the key-value capability the ledger persists
// through. Values are opaque blobs; callers own their encoding.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Store is a get/set-by-key blob store with optional expiry. No
// transactional guarantees are assumed.
type Store interface {
	// Get returns the value for key. found is false when the key is absent
	// or expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}
