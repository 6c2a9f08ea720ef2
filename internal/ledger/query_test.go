package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/sprintlog/internal/store"
)

func TestStoryNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Story(context.Background(), "WK-404", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoryEmptyIsNotNotFound(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	require.NoError(t, mem.Set(ctx, CycleKey("WK-1"), []byte("Sprint-7"), 0))
	require.NoError(t, mem.Set(ctx, RecordsKey("Sprint-7", "WK-1"), []byte("[]"), 0))

	view, err := svc.Story(ctx, "WK-1", "")
	require.NoError(t, err)
	assert.Equal(t, "Sprint-7", view.CycleID)
	assert.NotNil(t, view.Records)
	assert.Empty(t, view.Records)
}

func TestStoryAfterIngest(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	sample := readSample(t)
	_, err := svc.Ingest(ctx, "ORI-136135", sample)
	require.NoError(t, err)

	view, err := svc.Story(ctx, "ORI-136135", "")
	require.NoError(t, err)
	assert.Equal(t, "Plum 25R3.2 Sprint 2", view.CycleID)
	assert.Len(t, view.Records, 6)
	require.NotNil(t, view.Summary)
	assert.Contains(t, *view.Summary, "Story 主要研发工作已完成")

	explicit, err := svc.Story(ctx, "ORI-136135", "Plum 25R3.2 Sprint 2")
	require.NoError(t, err)
	assert.Len(t, explicit.Records, 6)

	_, err = svc.Story(ctx, "ORI-136135", "Some Other Sprint")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoryCorruptRecordsWithSummary(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	require.NoError(t, mem.Set(ctx, RecordsKey("S", "WK-1"), []byte("{broken"), 0))
	require.NoError(t, mem.Set(ctx, SummaryKey("S", "WK-1"), []byte("all good"), 0))

	view, err := svc.Story(ctx, "WK-1", "S")
	require.NoError(t, err)
	assert.Empty(t, view.Records)
	assert.Equal(t, "all good", *view.Summary)
}

func TestStoryCorruptRecordsAloneIsFound(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	require.NoError(t, mem.Set(ctx, RecordsKey("S", "WK-1"), []byte(`{"not":"a list"}`), 0))

	view, err := svc.Story(ctx, "WK-1", "S")
	require.NoError(t, err)
	assert.NotNil(t, view.Records)
	assert.Empty(t, view.Records)
	assert.Nil(t, view.Summary)
}

func TestSetTagsAloneMakesStoryFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	require.NoError(t, svc.SetTags(ctx, "WK-7", map[string][]string{"delay": {"rule1"}, "risk": {}}))

	view, err := svc.Story(ctx, "WK-7", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"rule1"}, view.Tags["delay"])
	assert.Empty(t, view.Records)
	assert.Nil(t, view.Summary)
}

func TestImportBoard(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	listing := "```json\n[{\"key\":\"WK-1\",\"summary\":\"a\",\"status\":\"Open\",\"tags\":{\"risk\":[\"r3\"]}}," +
		"{\"key\":\"WK-2\",\"summary\":\"b\",\"status\":\"Closed\",\"tags\":{\"delay\":[]}}]\n```"

	n, err := svc.ImportBoard(ctx, listing)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	view, err := svc.Story(ctx, "WK-1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"r3"}, view.Tags["risk"])

	_, err = svc.ImportBoard(ctx, "no listing here")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "sprint:Sprint-7:story:WK-42", RecordsKey("Sprint-7", "WK-42"))
	assert.Equal(t, "sprint:Sprint-7:story:WK-42:summary", SummaryKey("Sprint-7", "WK-42"))
	assert.Equal(t, "story:cycle:WK-42", CycleKey("WK-42"))
	assert.Equal(t, "story:tags:WK-42", TagsKey("WK-42"))
}

// gatedStore blocks the first Get until release is closed, then honors the
// caller's context like a network store would.
type gatedStore struct {
	store.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return g.Store.Get(ctx, key)
}

func TestStoryCanceledCallerDoesNotFailOthers(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Set(ctx, CycleKey("WK-1"), []byte("S"), 0))
	require.NoError(t, mem.Set(ctx, RecordsKey("S", "WK-1"),
		[]byte(`[{"User":"Ada","Jira_ID":"WK-1","Date":"2026-01-20","Content":"Note","Comment":"x"}]`), 0))

	gated := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(gated, Options{})

	callerCtx, cancel := context.WithCancel(ctx)
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Story(callerCtx, "WK-1", "")
		firstErr <- err
	}()
	<-gated.entered
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	type result struct {
		view *StoryView
		err  error
	}
	second := make(chan result, 1)
	go func() {
		v, err := svc.Story(ctx, "WK-1", "")
		second <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(gated.release)

	res := <-second
	require.NoError(t, res.err)
	require.Len(t, res.view.Records, 1)
	assert.Equal(t, "Ada", res.view.Records[0].User)
}
