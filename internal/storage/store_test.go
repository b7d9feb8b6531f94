package storage_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"eduscale/internal/event"
	"eduscale/internal/storage"
)

func TestPutGetStat(t *testing.T) {
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	payload := []byte("hello object")
	info, err := store.Put("ingest", "uploads/region-1/f1_report.txt", payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.SizeBytes != int64(len(payload)) {
		t.Fatalf("size = %d, want %d", info.SizeBytes, len(payload))
	}

	got, err := store.Get("ingest", "uploads/region-1/f1_report.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %q", got)
	}

	if !store.Exists("ingest", "uploads/region-1/f1_report.txt") {
		t.Fatal("object should exist after Put")
	}
	if store.Exists("ingest", "uploads/region-1/missing.txt") {
		t.Fatal("missing object reported as existing")
	}
}

func TestPutRejectsEscapingPaths(t *testing.T) {
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, p := range []string{"../outside.txt", "uploads/../../etc/passwd", "..", ""} {
		if _, err := store.Put("ingest", p, []byte("x")); err == nil {
			t.Fatalf("Put(%q): expected error", p)
		}
		if p == "" {
			continue
		}
		if _, err := store.Get("ingest", p); err == nil {
			t.Fatalf("Get(%q): expected error", p)
		}
		if _, err := store.Stat("ingest", p); err == nil {
			t.Fatalf("Stat(%q): expected error", p)
		}
	}
}

func TestPutLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	store, err := storage.NewStore(root)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Put("ingest", "uploads/r/f1_a.txt", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "ingest", "uploads", "r"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "f1_a.txt" {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}

func TestURI(t *testing.T) {
	if got := storage.URI("ingest", "text/abc.txt"); got != "store://ingest/text/abc.txt" {
		t.Fatalf("URI = %q", got)
	}
}

func TestWatcherEmitsNotifications(t *testing.T) {
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	events := make(chan event.Notification, 8)
	watcher, err := storage.NewWatcher(store, "ingest", func(n event.Notification) { events <- n }, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer watcher.Close()

	if _, err := store.Put("ingest", "uploads/region-1/f1_notes.txt", []byte("body")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	n := waitFor(t, events)
	if n.Bucket != "ingest" || n.ObjectPath != "uploads/region-1/f1_notes.txt" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if n.SizeBytes != 4 {
		t.Fatalf("size = %d, want 4", n.SizeBytes)
	}
	if n.ID == "" {
		t.Fatal("notification must carry an event id")
	}
}

func TestWatcherReplaysPreexistingObjects(t *testing.T) {
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Put("ingest", "uploads/region-2/f2_old.csv", []byte("a,b")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	events := make(chan event.Notification, 8)
	watcher, err := storage.NewWatcher(store, "ingest", func(n event.Notification) { events <- n }, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer watcher.Close()

	n := waitFor(t, events)
	if n.ObjectPath != "uploads/region-2/f2_old.csv" {
		t.Fatalf("unexpected notification: %+v", n)
	}
}

func waitFor(t *testing.T, events <-chan event.Notification) event.Notification {
	t.Helper()
	select {
	case n := <-events:
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
		return event.Notification{}
	}
}
