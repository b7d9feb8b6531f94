package daemon_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"eduscale/internal/config"
	"eduscale/internal/daemon"
	"eduscale/internal/status"
	"eduscale/internal/testsupport"
	"eduscale/internal/warehouse"
)

func startDaemon(t *testing.T, opts ...testsupport.ConfigOption) *daemon.Daemon {
	t.Helper()
	return startDaemonWithConfig(t, testsupport.NewConfig(t, opts...))
}

func startDaemonWithConfig(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func waitForStage(t *testing.T, d *daemon.Daemon, fileID string, stage status.Stage) *status.Record {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if record, ok := d.Records().Get(fileID); ok && record.CurrentStage == stage {
			return record
		}
		time.Sleep(20 * time.Millisecond)
	}
	record, ok := d.Records().Get(fileID)
	if !ok {
		t.Fatalf("no record for %s after timeout", fileID)
	}
	t.Fatalf("file %s stuck at %s (warnings: %v), want %s", fileID, record.CurrentStage, record.AuditWarnings, stage)
	return nil
}

func TestDaemonProcessesUploadEndToEnd(t *testing.T) {
	d := startDaemon(t)

	if _, err := d.Objects().Put("ingest", "uploads/region-1/abc123_notes.txt", []byte("alpha beta\ngamma\n")); err != nil {
		t.Fatalf("Put upload: %v", err)
	}

	record := waitForStage(t, d, "abc123", status.StageDone)
	if record.RegionID != "region-1" {
		t.Fatalf("region = %q", record.RegionID)
	}
	if record.TextURI != "store://ingest/text/abc123.txt" {
		t.Fatalf("TextURI = %q", record.TextURI)
	}
	if record.Metadata["rows_loaded"] != int64(2) {
		t.Fatalf("rows_loaded = %v, want 2", record.Metadata["rows_loaded"])
	}
	if record.Metadata["cache_hit"] != false {
		t.Fatalf("cache_hit = %v", record.Metadata["cache_hit"])
	}

	// Every intermediate artifact was written.
	for _, artifact := range []string{
		"classified/text/region-1/abc123_notes.txt",
		"text/abc123.txt",
		"clean/abc123.json",
	} {
		if !d.Objects().Exists("ingest", artifact) {
			t.Fatalf("artifact %s missing", artifact)
		}
	}
}

func TestDaemonLoadsRowsIntoWarehouse(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemonWithConfig(t, cfg)

	if _, err := d.Objects().Put("ingest", "uploads/region-2/wh42_rows.txt", []byte("one\ntwo\nthree\n")); err != nil {
		t.Fatalf("Put upload: %v", err)
	}
	waitForStage(t, d, "wh42", status.StageDone)
	d.Stop()

	wh, err := warehouse.Open(cfg.WarehouseDSN())
	if err != nil {
		t.Fatalf("warehouse.Open: %v", err)
	}
	defer wh.Close()
	count, err := wh.RowCount(context.Background(), "wh42")
	if err != nil {
		t.Fatalf("RowCount: %v", err)
	}
	if count != 3 {
		t.Fatalf("RowCount = %d, want 3", count)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutWatcher())
	first := startDaemonWithConfig(t, cfg)
	_ = first

	second, err := daemon.New(cfg, nil)
	if err != nil {
		t.Fatalf("second daemon.New: %v", err)
	}
	defer second.Close()
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("second instance must fail to acquire the lock")
	}
}

func TestDaemonReplay(t *testing.T) {
	d := startDaemon(t, testsupport.WithoutWatcher())

	if _, err := d.Objects().Put("ingest", "uploads/region-1/rp7_doc.txt", []byte("row\n")); err != nil {
		t.Fatalf("Put upload: %v", err)
	}
	// Without the watcher nothing picked the object up.
	if _, ok := d.Records().Get("rp7"); ok {
		t.Fatal("record must not exist before replay")
	}

	n, err := d.Replay(context.Background(), "", "uploads/region-1/rp7_doc.txt")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n.Bucket != "ingest" {
		t.Fatalf("replay bucket = %q", n.Bucket)
	}
	waitForStage(t, d, "rp7", status.StageDone)

	if _, err := d.Replay(context.Background(), "", "uploads/region-1/missing_doc.txt"); err == nil {
		t.Fatal("replay of a missing object must fail")
	}
}

func TestDaemonStatusSummary(t *testing.T) {
	d := startDaemon(t, testsupport.WithoutWatcher())

	d.Records().Upsert("f1", status.NewRecord("f1", "r1", status.StageExtract))
	d.Records().Upsert("f2", status.NewRecord("f2", "r1", status.StageDone))

	summary := d.Status()
	if !summary.Running {
		t.Fatal("daemon should report running")
	}
	if summary.FileCount != 2 {
		t.Fatalf("FileCount = %d, want 2", summary.FileCount)
	}
	if summary.StageCount["extract"] != 1 || summary.StageCount["done"] != 1 {
		t.Fatalf("StageCount = %v", summary.StageCount)
	}
	if summary.RuleCount != 4 {
		t.Fatalf("RuleCount = %d, want 4 default rules", summary.RuleCount)
	}

	if _, err := json.Marshal(summary); err != nil {
		t.Fatalf("status must serialize: %v", err)
	}
}
