// Package collect gathers progress reports from feeds and an inbox
// directory and submits them for ingestion.
package collect

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/sprintlog/internal/ledger"
)

// Submission is one report waiting to be ingested.
type Submission struct {
	StoryID string
	Text    string
	// Source labels the pass in the run journal ("feed", "watch").
	Source string
	// Origin identifies where the report came from (item URL, file path).
	Origin string
}

// Ingester runs a reconciliation pass. *ledger.Service implements it.
type Ingester interface {
	Ingest(ctx context.Context, storyID, text string, opts ...ledger.IngestOption) (*ledger.IngestResult, error)
}

// Result holds the results of a collection run.
type Result struct {
	Submitted int
	Changed   int
	Unchanged int
	Failed    int
	Stories   map[string]int
}

// Runner submits reports with bounded concurrency. Ordering between
// passes of the same story is left to the Ingester.
type Runner struct {
	ingester    Ingester
	concurrency int
	logger      *zap.Logger
}

// NewRunner creates a Runner. concurrency below 1 means one at a time.
func NewRunner(ingester Ingester, concurrency int, logger *zap.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{ingester: ingester, concurrency: concurrency, logger: logger}
}

// Run ingests every submission. A failed submission is counted and logged;
// it does not stop the others. Run returns early only when ctx is done.
func (r *Runner) Run(ctx context.Context, subs []Submission) (*Result, error) {
	res := &Result{Stories: make(map[string]int)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			out, err := r.ingester.Ingest(ctx, sub.StoryID, sub.Text, ledger.WithSource(sub.Source))

			mu.Lock()
			defer mu.Unlock()
			res.Submitted++
			res.Stories[sub.StoryID]++
			switch {
			case err != nil:
				res.Failed++
				r.logger.Error("ingest failed",
					zap.String("story", sub.StoryID), zap.String("origin", sub.Origin), zap.Error(err))
			case out.NoNewActivity():
				res.Unchanged++
			default:
				res.Changed++
			}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("collection complete",
		zap.Int("submitted", res.Submitted),
		zap.Int("changed", res.Changed),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("failed", res.Failed),
	)
	return res, ctx.Err()
}
