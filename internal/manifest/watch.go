package manifest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a manifest directory for changes and reloads between
// runs — never mid-execution, which would be dynamic DAG mutation
// (spec.md §1 non-goal). Grounded on
// theRebelliousNerd-codenerd's MangleWatcher: an fsnotify watcher with a
// debounce window batching rapid saves into a single reload, adapted from
// per-file rule validation to a whole-directory Manifest reload.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dir         string
	logger      *slog.Logger
	debounceDur time.Duration
	pending     time.Time

	onReload func(*Manifest, error)

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher builds a Watcher rooted at dir. onReload is called with the
// freshly loaded Manifest (or the load error) each time the debounce
// window settles after a change.
func NewWatcher(dir string, logger *slog.Logger, onReload func(*Manifest, error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		dir:         dir,
		logger:      logger,
		debounceDur: 500 * time.Millisecond,
		onReload:    onReload,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// SetDebounce overrides the default 500ms debounce window. Must be called
// before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounceDur = d
}

// Start begins watching in a background goroutine. Non-blocking.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("manifest watcher error", "error", err, "dir", w.dir)
		case <-ticker.C:
			w.maybeReload()
		}
	}
}

func (w *Watcher) maybeReload() {
	w.mu.Lock()
	pending := w.pending
	w.pending = time.Time{}
	w.mu.Unlock()

	if pending.IsZero() || time.Since(pending) < w.debounceDur {
		if !pending.IsZero() {
			w.mu.Lock()
			w.pending = pending
			w.mu.Unlock()
		}
		return
	}

	m, err := Load(w.dir, w.logger)
	if err != nil {
		w.logger.Error("manifest reload failed", "error", err, "dir", w.dir)
	} else {
		w.logger.Info("manifest reloaded", "dir", w.dir)
	}
	if w.onReload != nil {
		w.onReload(m, err)
	}
}
