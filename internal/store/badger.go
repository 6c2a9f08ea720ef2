package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerOptions configures a Badger store.
type BadgerOptions struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path     string
	InMemory bool
	// GCInterval enables periodic value log GC. Zero disables it.
	GCInterval time.Duration
	Logger     *zap.Logger
}

// Badger stores blobs in an embedded BadgerDB with native TTL support.
type Badger struct {
	db     *badger.DB
	logger *zap.Logger
	stopGC chan struct{}
	gcDone chan struct{}
}

// badgerLogger adapts zap to BadgerDB's Logger interface.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.s.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }

// OpenBadger opens a Badger store.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("badger path is required for persistent database")
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating badger directory %s: %w", opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{s: logger.Named("badger").Sugar()})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}

	b := &Badger{db: db, logger: logger}
	if opts.GCInterval > 0 && !opts.InMemory {
		b.stopGC = make(chan struct{})
		b.gcDone = make(chan struct{})
		go b.runGC(opts.GCInterval)
	}
	return b, nil
}

// Get implements Store.
func (b *Badger) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, false, nil
	case errors.Is(err, badger.ErrDBClosed):
		return nil, false, ErrClosed
	case err != nil:
		return nil, false, err
	}
	return value, true, nil
}

// Set implements Store.
func (b *Badger) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

// Close stops GC and closes the database.
func (b *Badger) Close() error {
	if b.stopGC != nil {
		close(b.stopGC)
		<-b.gcDone
		b.stopGC = nil
	}
	return b.db.Close()
}

func (b *Badger) runGC(interval time.Duration) {
	defer close(b.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means there was nothing to collect.
			if err := b.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				b.logger.Warn("badger value log GC failed", zap.Error(err))
			}
		}
	}
}
