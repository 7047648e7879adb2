package tail

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Sink receives each non-empty batch of newly appended records.
type Sink func([]Record)

// Watcher drives a Tracker from file system notifications. It watches the
// parent directory rather than the file so the file may be created late,
// removed, or replaced by rotation.
type Watcher struct {
	tracker  *Tracker
	onGrowth Sink
	logger   *slog.Logger
	ready    chan struct{}
}

// NewWatcher creates a Watcher delivering batches from tracker to onGrowth.
func NewWatcher(tracker *Tracker, onGrowth Sink, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		tracker:  tracker,
		onGrowth: onGrowth,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Ready is closed once notifications are being received.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is canceled. onGrowth is called from this goroutine,
// one batch at a time, in file order.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	path := filepath.Clean(w.tracker.Path())
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	close(w.ready)

	w.logger.Info("watching events file", "path", path)

	// Catch up on anything appended between tracker creation and Add.
	w.poll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) ||
				ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.poll()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "path", path, "error", err)
		}
	}
}

func (w *Watcher) poll() {
	records, err := w.tracker.Poll()
	if err != nil {
		w.logger.Warn("failed to read events file", "path", w.tracker.Path(), "error", err)
		return
	}
	if len(records) == 0 {
		return
	}
	w.logger.Debug("events appended", "path", w.tracker.Path(), "count", len(records), "offset", w.tracker.Offset())
	w.onGrowth(records)
}
