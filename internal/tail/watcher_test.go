package tail

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startWatcher(t *testing.T, path string) <-chan []Record {
	t.Helper()
	tr, err := NewTracker(path)
	if err != nil {
		t.Fatal(err)
	}

	batches := make(chan []Record, 16)
	w := NewWatcher(tr, func(records []Record) { batches <- records }, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error: %v", err)
		}
	})

	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not become ready")
	}
	return batches
}

func nextBatch(t *testing.T, batches <-chan []Record) []Record {
	t.Helper()
	select {
	case b := <-batches:
		return b
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for appended records")
		return nil
	}
}

func TestWatcher_DeliversOnlyAppendedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	appendFile(t, path, `{"actor":"before"}`+"\n")

	batches := startWatcher(t, path)
	appendFile(t, path, `{"actor":"after"}`+"\n")

	batch := nextBatch(t, batches)
	if len(batch) != 1 || batch[0]["actor"] != "after" {
		t.Fatalf("expected exactly the appended record, got %v", batch)
	}

	select {
	case extra := <-batches:
		t.Errorf("unexpected extra batch %v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_FileCreatedAfterStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	batches := startWatcher(t, path)

	appendFile(t, path, `{"actor":"first"}`+"\n")

	batch := nextBatch(t, batches)
	if len(batch) != 1 || batch[0]["actor"] != "first" {
		t.Fatalf("expected record from newly created file, got %v", batch)
	}
}

func TestWatcher_Truncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	appendFile(t, path, `{"actor":"a"}`+"\n"+`{"actor":"b"}`+"\n")
	batches := startWatcher(t, path)

	if err := os.Truncate(path, 0); err != nil {
		t.Fatal(err)
	}
	appendFile(t, path, `{"actor":"z"}`+"\n")

	batch := nextBatch(t, batches)
	if len(batch) != 1 || batch[0]["actor"] != "z" {
		t.Fatalf("expected only the post-truncation record, got %v", batch)
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "events.jsonl")
	tr, err := NewTracker(path)
	if err != nil {
		t.Fatal(err)
	}
	w := NewWatcher(tr, func([]Record) {}, nil)
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error watching a missing directory")
	}
}
