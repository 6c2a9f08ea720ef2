package collect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/TobiSchelling/sprintlog/internal/ledger"
	"github.com/TobiSchelling/sprintlog/internal/report"
)

// ProcessedDir is the inbox subdirectory ingested files are moved to.
const ProcessedDir = "processed"

var reportExts = map[string]bool{".md": true, ".markdown": true, ".txt": true}

// Watcher ingests report files dropped into an inbox directory. A file
// named <STORY-ID>.md or <STORY-ID>__<anything>.md is ingested for that
// story once writes to it settle, then moved to the processed
// subdirectory. Files that fail to ingest stay in place.
type Watcher struct {
	dir      string
	ingester Ingester
	debounce time.Duration
	logger   *zap.Logger
}

// NewWatcher creates a Watcher for dir.
func NewWatcher(dir string, ingester Ingester, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dir: dir, ingester: ingester, debounce: debounce, logger: logger}
}

// StoryIDFromFilename derives the story id from an inbox file name.
func StoryIDFromFilename(name string) (string, bool) {
	base := filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(base))
	if !reportExts[ext] {
		return "", false
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.Index(stem, "__"); i >= 0 {
		stem = stem[:i]
	}
	if !report.IsItemID(stem) {
		return "", false
	}
	return stem, true
}

// Run watches the inbox until ctx is done. Files already present when Run
// starts are ingested first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(w.dir, ProcessedDir), 0o755); err != nil {
		return fmt.Errorf("creating inbox: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching inbox", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))

	w.processExisting(ctx)

	pending := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if _, ok := StoryIDFromFilename(event.Name); !ok {
				continue
			}
			pending[event.Name] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))

		case <-timerC:
			timer = nil
			timerC = nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)
			for _, p := range paths {
				w.process(ctx, p)
			}
		}
	}
}

func (w *Watcher) processExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("listing inbox failed", zap.Error(err))
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.process(ctx, filepath.Join(w.dir, e.Name()))
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	storyID, ok := StoryIDFromFilename(path)
	if !ok {
		return
	}
	log := w.logger.With(zap.String("file", path), zap.String("story", storyID))

	data, err := os.ReadFile(path)
	if err != nil {
		// Already moved by an earlier event, or removed by the sender.
		log.Debug("report file unreadable", zap.Error(err))
		return
	}

	res, err := w.ingester.Ingest(ctx, storyID, string(data), ledger.WithSource("watch"))
	if err != nil {
		log.Error("ingest failed, leaving file in inbox", zap.Error(err))
		return
	}

	dest := filepath.Join(w.dir, ProcessedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		log.Warn("moving processed report failed", zap.Error(err))
		return
	}
	log.Info(res.Message())
}
