package collect

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/TobiSchelling/sprintlog/internal/ledger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeIngester records calls and fails for story "ERR-1".
type fakeIngester struct {
	mu       sync.Mutex
	calls    []Submission
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (f *fakeIngester) Ingest(_ context.Context, storyID, text string, opts ...ledger.IngestOption) (*ledger.IngestResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	f.calls = append(f.calls, Submission{StoryID: storyID, Text: text})
	f.mu.Unlock()

	if storyID == "ERR-1" {
		return nil, errors.New("store unavailable")
	}
	r := &ledger.IngestResult{StoryID: storyID}
	if text != "same" {
		r.Inserted = 1
	}
	return r, nil
}

func TestRunnerCountsOutcomes(t *testing.T) {
	ing := &fakeIngester{}
	runner := NewRunner(ing, 2, nil)

	res, err := runner.Run(context.Background(), []Submission{
		{StoryID: "WK-1", Text: "new"},
		{StoryID: "WK-1", Text: "same"},
		{StoryID: "WK-2", Text: "new"},
		{StoryID: "ERR-1", Text: "new"},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Submitted)
	assert.Equal(t, 2, res.Changed)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Stories["WK-1"])
	assert.Len(t, ing.calls, 4)
}

func TestRunnerBoundsConcurrency(t *testing.T) {
	ing := &fakeIngester{delay: 10 * time.Millisecond}
	runner := NewRunner(ing, 3, nil)

	subs := make([]Submission, 12)
	for i := range subs {
		subs[i] = Submission{StoryID: "WK-1", Text: "new"}
	}
	_, err := runner.Run(context.Background(), subs)
	require.NoError(t, err)
	assert.LessOrEqual(t, ing.maxSeen.Load(), int32(3))
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ing := &fakeIngester{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewRunner(ing, 1, nil).Run(ctx, []Submission{{StoryID: "WK-1", Text: "new"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Submitted)
}
