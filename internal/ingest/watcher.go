package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/queue"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DefaultSettle is how long a file must be quiet before it is enqueued.
const DefaultSettle = 500 * time.Millisecond

// Watcher enqueues PDFs that appear in the pending directory.
type Watcher struct {
	dir    string
	queue  queue.Queue
	settle time.Duration
	logger *zap.Logger
}

// NewWatcher creates a watcher over dir publishing to q.
func NewWatcher(dir string, q queue.Queue, settle time.Duration, logger *zap.Logger) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dir: dir, queue: q, settle: settle, logger: logger}
}

// Scan enqueues every PDF already in the directory and returns how many
// were published.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", w.dir, err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !IsPDF(e.Name()) {
			continue
		}
		if err := w.publish(ctx, filepath.Join(w.dir, e.Name())); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Run watches the directory until ctx is cancelled. Existing files are
// enqueued first; new files are enqueued once they stop changing.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	// Scan after Add so nothing created in between is missed.
	n, err := w.Scan(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("watching pending directory",
		zap.String("dir", w.dir),
		zap.Int("existing", n),
	)

	ready := make(chan string, 64)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !IsPDF(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				if t, ok := timers[event.Name]; ok {
					t.Reset(w.settle)
					continue
				}
				name := event.Name
				timers[name] = time.AfterFunc(w.settle, func() {
					select {
					case ready <- name:
					case <-ctx.Done():
					}
				})
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				if t, ok := timers[event.Name]; ok {
					t.Stop()
					delete(timers, event.Name)
				}
			}

		case name := <-ready:
			delete(timers, name)
			if _, err := os.Stat(name); err != nil {
				continue
			}
			if err := w.publish(ctx, name); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("failed to enqueue document", zap.String("path", name), zap.Error(err))
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) publish(ctx context.Context, path string) error {
	job := queue.NewJob(path)
	if err := w.queue.Publish(ctx, job); err != nil {
		return fmt.Errorf("enqueueing %s: %w", filepath.Base(path), err)
	}
	w.logger.Debug("document enqueued", zap.String("job_id", job.ID), zap.String("path", path))
	return nil
}
