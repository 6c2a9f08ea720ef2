package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TobiSchelling/sprintlog/internal/database"
	"github.com/TobiSchelling/sprintlog/internal/reconcile"
	"github.com/TobiSchelling/sprintlog/internal/report"
	"github.com/TobiSchelling/sprintlog/internal/tags"
)

// StoryView is the reconciled state of a story. Views may be shared
// between concurrent callers and must not be modified.
type StoryView struct {
	StoryID string                  `json:"story_id"`
	CycleID string                  `json:"cycle_id"`
	Records []report.ActivityRecord `json:"records"`
	Summary *string                 `json:"summary"`
	Tags    map[string][]string     `json:"tags"`
}

// Story returns the state of storyID in cycleID, or in the cycle it was last
// ingested under when cycleID is empty. A story with no stored records,
// summary or tags yields ErrNotFound.
//
// Concurrent identical queries share one load. The load is detached from
// any single caller's cancellation; each caller still stops waiting when
// its own ctx is done.
func (s *Service) Story(ctx context.Context, storyID, cycleID string) (*StoryView, error) {
	loadCtx := context.WithoutCancel(ctx)
	ch := s.queries.DoChan(storyID+"\x00"+cycleID, func() (any, error) {
		return s.loadStory(loadCtx, storyID, cycleID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*StoryView), nil
	}
}

func (s *Service) loadStory(ctx context.Context, storyID, cycleID string) (*StoryView, error) {
	view := &StoryView{StoryID: storyID, CycleID: cycleID}
	found := false

	if view.CycleID == "" {
		pointer, ok, err := s.store.Get(ctx, CycleKey(storyID))
		if err != nil {
			return nil, fmt.Errorf("reading cycle pointer: %w", err)
		}
		if ok {
			view.CycleID = string(pointer)
		}
	}

	if view.CycleID != "" {
		blob, ok, err := s.store.Get(ctx, RecordsKey(view.CycleID, storyID))
		if err != nil {
			return nil, fmt.Errorf("reading records: %w", err)
		}
		if ok {
			found = true
			records, valid := reconcile.DecodeRecords(blob)
			if valid {
				view.Records = records
			} else {
				s.logger.Warn("stored records unreadable", zap.String("story", storyID), zap.String("cycle", view.CycleID))
			}
		}

		summary, ok, err := s.store.Get(ctx, SummaryKey(view.CycleID, storyID))
		if err != nil {
			return nil, fmt.Errorf("reading summary: %w", err)
		}
		if ok {
			text := string(summary)
			view.Summary = &text
			found = true
		}
	}

	blob, ok, err := s.store.Get(ctx, TagsKey(storyID))
	if err != nil {
		return nil, fmt.Errorf("reading tags: %w", err)
	}
	if ok {
		view.Tags = tags.Decode(blob)
		found = found || view.Tags != nil
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, storyID)
	}
	if view.Records == nil {
		view.Records = []report.ActivityRecord{}
	}
	return view, nil
}

// SetTags stores the board tags of a story. They expire after the
// configured tag TTL.
func (s *Service) SetTags(ctx context.Context, storyID string, storyTags map[string][]string) error {
	if storyID == "" {
		return fmt.Errorf("story id is required")
	}
	blob, err := tags.Encode(storyTags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	if err := s.store.Set(ctx, TagsKey(storyID), blob, s.tagTTL); err != nil {
		return fmt.Errorf("writing tags for %s: %w", storyID, err)
	}
	return nil
}

// ImportBoard parses a board listing and stores the tags of every story in
// it. It returns how many stories were stored.
func (s *Service) ImportBoard(ctx context.Context, listing string) (int, error) {
	entries, err := tags.ParseBoardResponse(listing)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := s.SetTags(ctx, e.Key, e.Tags); err != nil {
			return i, err
		}
	}
	s.logger.Info("board tags imported", zap.Int("stories", len(entries)))
	return len(entries), nil
}

// History returns the journaled passes of a story, newest first.
func (s *Service) History(ctx context.Context, storyID string, limit int) ([]database.IngestRun, error) {
	if s.journal == nil {
		return nil, nil
	}
	runs, err := s.journal.GetRuns(ctx, storyID, limit)
	if err != nil {
		return nil, fmt.Errorf("reading run history: %w", err)
	}
	return runs, nil
}
