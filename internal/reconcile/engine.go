package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/TobiSchelling/sprintlog/internal/report"
	"github.com/TobiSchelling/sprintlog/internal/store"
)

// ErrWriteBack wraps store failures while persisting merged records. The
// Result returned alongside it is complete but was not persisted.
var ErrWriteBack = errors.New("writing reconciled records")

// Engine runs Merge against the state held in a Store.
type Engine struct {
	store  store.Store
	logger *zap.Logger
}

// NewEngine returns an Engine over s. A nil logger discards output.
func NewEngine(s store.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: s, logger: logger}
}

// Reconcile reads the records stored under key, merges newRecords into them
// and writes the result back when anything changed. A failed or corrupt read
// is treated as empty prior state.
func (e *Engine) Reconcile(ctx context.Context, key string, newRecords []report.ActivityRecord) (Result, error) {
	prior, readFailed := e.loadPrior(ctx, key)

	r := Merge(newRecords, prior)
	r.PriorReadFailed = readFailed
	if !r.Changed {
		e.logger.Debug("no changes", zap.String("key", key), zap.Int("records", len(r.Records)))
		return r, nil
	}

	blob, err := EncodeRecords(r.Records)
	if err != nil {
		return r, fmt.Errorf("%w: encoding %s: %w", ErrWriteBack, key, err)
	}
	if err := e.store.Set(ctx, key, blob, 0); err != nil {
		return r, fmt.Errorf("%w: %s: %w", ErrWriteBack, key, err)
	}

	e.logger.Debug("records written",
		zap.String("key", key),
		zap.Int("records", len(r.Records)),
		zap.Int("inserted", r.Inserted),
		zap.Int("updated", r.Updated),
		zap.Int("duplicates_removed", r.DuplicatesRemoved),
	)
	return r, nil
}

func (e *Engine) loadPrior(ctx context.Context, key string) ([]report.ActivityRecord, bool) {
	blob, found, err := e.store.Get(ctx, key)
	if err != nil {
		e.logger.Warn("reading prior records failed, merging against empty state",
			zap.String("key", key), zap.Error(err))
		return nil, true
	}
	if !found {
		return nil, false
	}
	records, ok := DecodeRecords(blob)
	if !ok {
		e.logger.Warn("stored records unreadable, treating as empty",
			zap.String("key", key), zap.Int("bytes", len(blob)))
		return nil, false
	}
	return records, false
}
