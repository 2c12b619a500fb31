package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]ChangeEvent
}

func (r *batchRecorder) record(batch []ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
}

func (r *batchRecorder) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, b := range r.batches {
		for _, e := range b {
			out = append(out, filepath.Base(e.Path))
		}
	}
	return out
}

func startWatcher(t *testing.T, dir string, filter *PatternFilter, rec *batchRecorder) context.CancelFunc {
	t.Helper()
	w, err := NewFSWatcher(50*time.Millisecond, filter, rec.record)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WatchRecursive(dir); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = w.Run(ctx)
	}()
	// Give watcher time to start
	time.Sleep(50 * time.Millisecond)
	return cancel
}

func TestFSWatcher_BatchesChangedFiles(t *testing.T) {
	dir := t.TempDir()
	offers := filepath.Join(dir, "offers.yaml")
	if err := os.WriteFile(offers, []byte("[]"), 0600); err != nil {
		t.Fatal(err)
	}

	rec := &batchRecorder{}
	cancel := startWatcher(t, dir, nil, rec)
	defer cancel()

	if err := os.WriteFile(offers, []byte("- id: o-1"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "time_entries.yaml"), []byte("[]"), 0600); err != nil {
		t.Fatal(err)
	}

	// Wait for debounce
	time.Sleep(200 * time.Millisecond)

	rec.mu.Lock()
	n := len(rec.batches)
	rec.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected one batch, got %d", n)
	}
	paths := rec.paths()
	if len(paths) != 2 || paths[0] != "offers.yaml" || paths[1] != "time_entries.yaml" {
		t.Errorf("expected both files once, got %v", paths)
	}
}

func TestFSWatcher_AppliesFilter(t *testing.T) {
	dir := t.TempDir()
	rec := &batchRecorder{}
	cancel := startWatcher(t, dir, NewPatternFilter([]string{"*.yaml"}, []string{".*"}), rec)
	defer cancel()

	_ = os.WriteFile(filepath.Join(dir, "events.jsonl"), []byte("{}"), 0600)
	_ = os.WriteFile(filepath.Join(dir, ".offers.yaml.tmp-1"), []byte("[]"), 0600)
	_ = os.WriteFile(filepath.Join(dir, "assignments.yaml"), []byte("[]"), 0600)

	time.Sleep(200 * time.Millisecond)

	paths := rec.paths()
	if len(paths) != 1 || paths[0] != "assignments.yaml" {
		t.Errorf("expected only assignments.yaml, got %v", paths)
	}
}

func TestFSWatcher_ContextCancellation(t *testing.T) {
	dir := t.TempDir()

	w, err := NewFSWatcher(50*time.Millisecond, nil, func([]ChangeEvent) {})
	if err != nil {
		t.Fatal(err)
	}

	if err := w.WatchRecursive(dir); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("watcher did not stop after context cancellation")
	}
}
