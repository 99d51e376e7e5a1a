package manifest

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWatcherReloadsAfterDebounce(t *testing.T) {
	dir := t.TempDir()
	writeMinimalManifest(t, dir)

	var mu sync.Mutex
	var got *Manifest
	var gotErr error
	reloaded := make(chan struct{}, 4)

	w, err := NewWatcher(dir, nil, func(m *Manifest, loadErr error) {
		mu.Lock()
		got, gotErr = m, loadErr
		mu.Unlock()
		reloaded <- struct{}{}
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.SetDebounce(30 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	writeFile(t, dir, "tools.yaml", minimalTools+"\n")

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotErr != nil {
		t.Fatalf("unexpected reload error: %v", gotErr)
	}
	if got == nil || len(got.Tools.Tools) != 1 {
		t.Fatalf("expected reloaded manifest with 1 tool, got %+v", got)
	}
}

func TestWatcherStopIsClean(t *testing.T) {
	dir := t.TempDir()
	writeMinimalManifest(t, dir)

	w, err := NewWatcher(dir, nil, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	w.Stop()
}
