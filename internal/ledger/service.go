// Package ledger runs reconciliation passes for stories and answers queries
// over the reconciled state.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/TobiSchelling/sprintlog/internal/database"
	"github.com/TobiSchelling/sprintlog/internal/observability"
	"github.com/TobiSchelling/sprintlog/internal/reconcile"
	"github.com/TobiSchelling/sprintlog/internal/report"
	"github.com/TobiSchelling/sprintlog/internal/store"
)

// ErrNotFound is returned by queries for stories with no stored state.
var ErrNotFound = errors.New("story not found")

// DefaultTagTTL is how long board tags live when Options.TagTTL is zero.
const DefaultTagTTL = 30 * 24 * time.Hour

// Journal records ingest passes. *database.DB implements it.
type Journal interface {
	InsertRun(ctx context.Context, r database.IngestRun) error
	GetRuns(ctx context.Context, storyID string, limit int) ([]database.IngestRun, error)
}

// Options configures a Service.
type Options struct {
	// Journal is optional; without it History reports no runs.
	Journal Journal
	Logger  *zap.Logger
	TagTTL  time.Duration
}

// Service is the entry point for ingesting reports and reading stories.
// Passes for the same story are serialized; different stories proceed
// concurrently.
type Service struct {
	store   store.Store
	engine  *reconcile.Engine
	journal Journal
	logger  *zap.Logger
	tagTTL  time.Duration

	locks   *keyedMutex
	queries singleflight.Group
}

// NewService returns a Service over s.
func NewService(s store.Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := opts.TagTTL
	if ttl <= 0 {
		ttl = DefaultTagTTL
	}
	return &Service{
		store:   s,
		engine:  reconcile.NewEngine(s, logger.Named("reconcile")),
		journal: opts.Journal,
		logger:  logger,
		tagTTL:  ttl,
		locks:   newKeyedMutex(),
	}
}

// StepResult holds the result of a single pass step.
type StepResult struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
	Err     error  `json:"-"`
}

// IngestResult describes one reconciliation pass.
type IngestResult struct {
	RunID             string       `json:"run_id"`
	StoryID           string       `json:"story_id"`
	CycleID           string       `json:"cycle_id"`
	CycleResolved     bool         `json:"cycle_resolved"`
	Parsed            int          `json:"parsed"`
	Gaps              int          `json:"gaps"`
	Inserted          int          `json:"inserted"`
	Updated           int          `json:"updated"`
	DuplicatesRemoved int          `json:"duplicates_removed"`
	Folded            int          `json:"folded"`
	Records           int          `json:"records"`
	Changed           bool         `json:"changed"`
	PriorReadFailed   bool         `json:"prior_read_failed"`
	SummaryFound      bool         `json:"summary_found"`
	SummaryUpdated    bool         `json:"summary_updated"`
	Steps             []StepResult `json:"steps"`
}

// NoNewActivity reports a pass that neither inserted nor updated records.
// It is a normal outcome, not an error.
func (r *IngestResult) NoNewActivity() bool {
	return r.Inserted == 0 && r.Updated == 0
}

// Message is a one-line human summary of the pass.
func (r *IngestResult) Message() string {
	if r.NoNewActivity() {
		return fmt.Sprintf("%s: no new activity (%d records on file)", r.StoryID, r.Records)
	}
	return fmt.Sprintf("%s: %d inserted, %d updated, %d duplicates removed (%d records on file)",
		r.StoryID, r.Inserted, r.Updated, r.DuplicatesRemoved, r.Records)
}

type ingestOptions struct {
	source string
}

// IngestOption customizes a single pass.
type IngestOption func(*ingestOptions)

// WithSource labels the pass in the run journal ("cli", "http", "feed", ...).
func WithSource(source string) IngestOption {
	return func(o *ingestOptions) { o.source = source }
}

// Ingest runs one reconciliation pass of text for storyID. Only store write
// failures are returned as errors; an unresolved cycle, a missing summary
// and a pass with nothing new all succeed.
func (s *Service) Ingest(ctx context.Context, storyID, text string, opts ...IngestOption) (*IngestResult, error) {
	if storyID == "" {
		return nil, errors.New("story id is required")
	}
	var o ingestOptions
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	r := &IngestResult{RunID: uuid.NewString(), StoryID: storyID}
	log := s.logger.With(zap.String("story", storyID), zap.String("run", r.RunID))

	// Step 1: Extract
	meta := report.Extract(text)
	r.CycleID = meta.CycleID
	r.CycleResolved = meta.CycleResolved
	r.SummaryFound = meta.Summary != nil
	if !meta.CycleResolved {
		log.Warn("no cycle identifier in report, using fallback", zap.String("cycle", meta.CycleID))
	}
	if meta.Summary == nil {
		log.Warn("no summary block in report")
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Extract",
		Summary: extractSummary(meta),
	})

	// Step 2: Parse
	records, stats := report.ParseWithStats(text)
	r.Parsed = stats.Emitted
	r.Gaps = stats.Gaps
	r.Steps = append(r.Steps, StepResult{
		Name:    "Parse",
		Summary: fmt.Sprintf("%d records from %d lines, %d bullets without context", stats.Emitted, stats.Lines, stats.Gaps),
	})

	unlock := s.locks.lock(storyID)
	defer unlock()

	// Step 3: Reconcile
	merged, err := s.engine.Reconcile(ctx, RecordsKey(meta.CycleID, storyID), records)
	r.Inserted = merged.Inserted
	r.Updated = merged.Updated
	r.DuplicatesRemoved = merged.DuplicatesRemoved
	r.Folded = merged.Folded
	r.Records = len(merged.Records)
	r.Changed = merged.Changed
	r.PriorReadFailed = merged.PriorReadFailed
	step := StepResult{
		Name: "Reconcile",
		Summary: fmt.Sprintf("%d inserted, %d updated, %d duplicates removed",
			merged.Inserted, merged.Updated, merged.DuplicatesRemoved),
		Err: err,
	}
	r.Steps = append(r.Steps, step)
	if err != nil {
		return s.finish(ctx, log, r, o, start, err)
	}

	// Step 4: Persist metadata
	step = s.persistMetadata(ctx, r, meta, len(merged.Records) > 0)
	r.Steps = append(r.Steps, step)
	return s.finish(ctx, log, r, o, start, step.Err)
}

func extractSummary(meta report.Metadata) string {
	summary := "no summary"
	if meta.Summary != nil {
		summary = fmt.Sprintf("summary of %d bytes", len(*meta.Summary))
	}
	if !meta.CycleResolved {
		return fmt.Sprintf("cycle unresolved, using %s; %s", meta.CycleID, summary)
	}
	return fmt.Sprintf("cycle %s; %s", meta.CycleID, summary)
}

// persistMetadata writes the summary when it changed and points the story
// at the cycle it was ingested under.
func (s *Service) persistMetadata(ctx context.Context, r *IngestResult, meta report.Metadata, hasRecords bool) StepResult {
	step := StepResult{Name: "Persist"}
	var written []string

	if meta.Summary != nil {
		updated, err := s.setIfChanged(ctx, SummaryKey(meta.CycleID, r.StoryID), []byte(*meta.Summary), 0)
		if err != nil {
			step.Err = fmt.Errorf("writing summary: %w", err)
			return step
		}
		r.SummaryUpdated = updated
		if updated {
			written = append(written, "summary")
		}
	}

	if hasRecords || meta.Summary != nil {
		updated, err := s.setIfChanged(ctx, CycleKey(r.StoryID), []byte(meta.CycleID), 0)
		if err != nil {
			step.Err = fmt.Errorf("writing cycle pointer: %w", err)
			return step
		}
		if updated {
			written = append(written, "cycle pointer")
		}
	}

	if len(written) == 0 {
		step.Summary = "metadata unchanged"
	} else {
		step.Summary = fmt.Sprintf("wrote %v", written)
	}
	return step
}

// setIfChanged writes value under key unless the stored value is equal. A
// failed read falls through to the write.
func (s *Service) setIfChanged(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	current, found, err := s.store.Get(ctx, key)
	if err == nil && found && bytes.Equal(current, value) {
		return false, nil
	}
	if err := s.store.Set(ctx, key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) finish(ctx context.Context, log *zap.Logger, r *IngestResult, o ingestOptions, start time.Time, err error) (*IngestResult, error) {
	outcome := observability.OutcomeUnchanged
	switch {
	case err != nil:
		outcome = observability.OutcomeFailed
	case r.Changed || r.SummaryUpdated:
		outcome = observability.OutcomeChanged
	}
	observability.RecordPass(observability.PassStats{
		Outcome:           outcome,
		Inserted:          r.Inserted,
		Updated:           r.Updated,
		DuplicatesRemoved: r.DuplicatesRemoved,
		Gaps:              r.Gaps,
		PriorReadFailed:   r.PriorReadFailed,
		Duration:          time.Since(start),
	})

	s.journalRun(ctx, log, r, o, err)

	if err != nil {
		log.Error("ingest failed", zap.Error(err))
		return r, err
	}
	log.Info("ingest finished",
		zap.String("cycle", r.CycleID),
		zap.Int("inserted", r.Inserted),
		zap.Int("updated", r.Updated),
		zap.Int("duplicates_removed", r.DuplicatesRemoved),
		zap.Int("records", r.Records),
		zap.Duration("took", time.Since(start)),
	)
	return r, nil
}

func (s *Service) journalRun(ctx context.Context, log *zap.Logger, r *IngestResult, o ingestOptions, passErr error) {
	if s.journal == nil {
		return
	}
	run := database.IngestRun{
		ID:                r.RunID,
		StoryID:           r.StoryID,
		CycleID:           r.CycleID,
		CycleResolved:     r.CycleResolved,
		Parsed:            r.Parsed,
		Inserted:          r.Inserted,
		Updated:           r.Updated,
		DuplicatesRemoved: r.DuplicatesRemoved,
		Folded:            r.Folded,
		Gaps:              r.Gaps,
		Changed:           r.Changed,
		SummaryFound:      r.SummaryFound,
	}
	if o.source != "" {
		run.Source = &o.source
	}
	if passErr != nil {
		msg := passErr.Error()
		run.Error = &msg
	}
	// The pass itself is done; journal even if the caller went away.
	if err := s.journal.InsertRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("journaling run failed", zap.Error(err))
	}
}
