package store

import (
	"context"
	"sync/atomic"
	"time"
)

// Faulty wraps a Store and fails operations on demand. It exists for
// exercising error paths of callers.
type Faulty struct {
	Store
	getErr atomic.Pointer[error]
	setErr atomic.Pointer[error]
}

// NewFaulty wraps s.
func NewFaulty(s Store) *Faulty {
	return &Faulty{Store: s}
}

// FailGets makes every Get return err. A nil err restores normal behavior.
func (f *Faulty) FailGets(err error) { f.getErr.Store(errPtr(err)) }

// FailSets makes every Set return err. A nil err restores normal behavior.
func (f *Faulty) FailSets(err error) { f.setErr.Store(errPtr(err)) }

// Get implements Store.
func (f *Faulty) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if p := f.getErr.Load(); p != nil {
		return nil, false, *p
	}
	return f.Store.Get(ctx, key)
}

// Set implements Store.
func (f *Faulty) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if p := f.setErr.Load(); p != nil {
		return *p
	}
	return f.Store.Set(ctx, key, value, ttl)
}

func errPtr(err error) *error {
	if err == nil {
		return nil
	}
	return &err
}
