package stages_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"eduscale/internal/event"
	"eduscale/internal/services"
	"eduscale/internal/stages"
	"eduscale/internal/storage"
	"eduscale/internal/warehouse"
)

const testBucket = "ingest"

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func testLimits() stages.Limits {
	return stages.Limits{
		MaxFileBytes:      1 << 20,
		MaxArchiveBytes:   4 << 20,
		MaxArchiveMembers: 100,
	}
}

func putObject(t *testing.T, store *storage.Store, objectPath string, data []byte, contentType string) event.Notification {
	t.Helper()
	info, err := store.Put(testBucket, objectPath, data)
	if err != nil {
		t.Fatalf("Put %s: %v", objectPath, err)
	}
	return event.New(testBucket, objectPath, contentType, info.SizeBytes)
}

func TestClassifierRoutesTextFile(t *testing.T) {
	store := newStore(t)
	classifier := stages.NewClassifier(store, testBucket, testLimits(), nil)

	n := putObject(t, store, "uploads/region-1/abc123_notes.txt", []byte("hello"), "text/plain")
	out, err := classifier.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Final {
		t.Fatal("regular file must not finish at classify")
	}
	if len(out.Forward) != 1 {
		t.Fatalf("forwarded %d notifications, want 1", len(out.Forward))
	}
	forward := out.Forward[0]
	if forward.ObjectPath != "classified/text/region-1/abc123_notes.txt" {
		t.Fatalf("forward path = %q", forward.ObjectPath)
	}
	if !store.Exists(testBucket, forward.ObjectPath) {
		t.Fatal("classified object was not written")
	}
	if out.Metadata["category"] != "text" {
		t.Fatalf("category = %v", out.Metadata["category"])
	}
}

func TestClassifierSizeGuard(t *testing.T) {
	store := newStore(t)
	limits := testLimits()
	limits.MaxFileBytes = 4
	classifier := stages.NewClassifier(store, testBucket, limits, nil)

	n := putObject(t, store, "uploads/region-1/big1_blob.txt", []byte("too large"), "text/plain")
	_, err := classifier.Process(context.Background(), n)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func buildZip(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestClassifierExpandsArchive(t *testing.T) {
	store := newStore(t)
	classifier := stages.NewClassifier(store, testBucket, testLimits(), nil)

	archive := buildZip(t, map[string]string{
		"lesson.txt":  "lesson body",
		"extra.md":    "extra body",
		"nested.zip":  "not expanded",
		"folder/a.md": "nested dir member",
	})
	n := putObject(t, store, "uploads/region-1/zip9_bundle.zip", archive, "application/zip")

	out, err := classifier.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.Final {
		t.Fatal("archive must finish at classify")
	}
	if len(out.Forward) != 0 {
		t.Fatalf("archive must forward nothing, got %d", len(out.Forward))
	}
	if out.Metadata["archive_members"] != 3 {
		t.Fatalf("archive_members = %v, want 3", out.Metadata["archive_members"])
	}
	for _, member := range []string{
		"uploads/region-1/zip9-lesson_lesson.txt",
		"uploads/region-1/zip9-extra_extra.md",
		"uploads/region-1/zip9-a_a.md",
	} {
		if !store.Exists(testBucket, member) {
			t.Fatalf("member %s not re-uploaded", member)
		}
	}
	if store.Exists(testBucket, "uploads/region-1/zip9-nested_nested.zip") {
		t.Fatal("nested archive must not be re-uploaded")
	}
	found := false
	for _, w := range out.Warnings {
		if strings.Contains(w, "nested archive") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected nested-archive warning, got %v", out.Warnings)
	}
}

func TestClassifierArchiveMemberLimit(t *testing.T) {
	store := newStore(t)
	limits := testLimits()
	limits.MaxArchiveMembers = 1
	classifier := stages.NewClassifier(store, testBucket, limits, nil)

	archive := buildZip(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	n := putObject(t, store, "uploads/region-1/zip2_pair.zip", archive, "application/zip")

	out, err := classifier.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.Final {
		t.Fatal("skipped archive must still finish")
	}
	if out.Metadata["archive_members"] != 0 {
		t.Fatalf("archive_members = %v, want 0", out.Metadata["archive_members"])
	}
	if store.Exists(testBucket, "uploads/region-1/zip2-a_a.txt") {
		t.Fatal("members of a skipped archive must not be written")
	}
}

func TestExtractorTextArtifact(t *testing.T) {
	store := newStore(t)
	extractor := stages.NewExtractor(store, testBucket, testLimits(), nil)

	n := putObject(t, store, "classified/text/region-1/abc123_notes.txt", []byte("hello world\nsecond line\n"), "text/plain")
	out, err := extractor.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.TextURI != "store://ingest/text/abc123.txt" {
		t.Fatalf("TextURI = %q", out.TextURI)
	}
	if out.Metadata["extraction_method"] != "direct" {
		t.Fatalf("extraction_method = %v", out.Metadata["extraction_method"])
	}
	if out.Metadata["word_count"] != 4 {
		t.Fatalf("word_count = %v, want 4", out.Metadata["word_count"])
	}
	if len(out.Forward) != 1 || out.Forward[0].ObjectPath != "text/abc123.txt" {
		t.Fatalf("forward = %+v", out.Forward)
	}

	artifact, err := store.Get(testBucket, "text/abc123.txt")
	if err != nil {
		t.Fatalf("Get artifact: %v", err)
	}
	text := string(artifact)
	if !strings.HasPrefix(text, "---\n") {
		t.Fatal("artifact lacks frontmatter")
	}
	for _, want := range []string{"file_id: abc123", "region_id: region-1", "method: direct", "hello world"} {
		if !strings.Contains(text, want) {
			t.Fatalf("artifact missing %q:\n%s", want, text)
		}
	}
}

func TestExtractorPlaceholderForUnsupportedCategory(t *testing.T) {
	store := newStore(t)
	extractor := stages.NewExtractor(store, testBucket, testLimits(), nil)

	n := putObject(t, store, "classified/pdf/region-1/doc77_paper.pdf", []byte("%PDF-1.7"), "application/pdf")
	out, err := extractor.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Metadata["extraction_method"] != "none" {
		t.Fatalf("extraction_method = %v, want none", out.Metadata["extraction_method"])
	}
	if len(out.Warnings) == 0 {
		t.Fatal("placeholder extraction must warn")
	}
	artifact, err := store.Get(testBucket, "text/doc77.txt")
	if err != nil {
		t.Fatalf("Get artifact: %v", err)
	}
	if !strings.Contains(string(artifact), "method: none") {
		t.Fatal("artifact must record method none")
	}
}

func TestExtractorMissingObject(t *testing.T) {
	store := newStore(t)
	extractor := stages.NewExtractor(store, testBucket, testLimits(), nil)

	n := event.New(testBucket, "classified/text/region-1/gone1_x.txt", "text/plain", 3)
	_, err := extractor.Process(context.Background(), n)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

const testArtifact = `---
file_id: abc123
region_id: region-1
category: text
method: direct
word_count: 4
source: store://ingest/classified/text/region-1/abc123_notes.txt
---
first row

second row
`

func TestStructurerStagesRows(t *testing.T) {
	store := newStore(t)
	structurer := stages.NewStructurer(store, testBucket, nil)

	n := putObject(t, store, "text/abc123.txt", []byte(testArtifact), "text/plain")
	out, err := structurer.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Metadata["rows_staged"] != 2 {
		t.Fatalf("rows_staged = %v, want 2", out.Metadata["rows_staged"])
	}
	if len(out.Forward) != 1 || out.Forward[0].ObjectPath != "clean/abc123.json" {
		t.Fatalf("forward = %+v", out.Forward)
	}

	payload, err := store.Get(testBucket, "clean/abc123.json")
	if err != nil {
		t.Fatalf("Get batch: %v", err)
	}
	var batch warehouse.StagedBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		t.Fatalf("Unmarshal batch: %v", err)
	}
	if batch.FileID != "abc123" || batch.RegionID != "region-1" {
		t.Fatalf("batch identity = %s/%s", batch.FileID, batch.RegionID)
	}
	if len(batch.Rows) != 2 || batch.Rows[0].Content != "first row" || batch.Rows[1].RowNo != 2 {
		t.Fatalf("rows = %+v", batch.Rows)
	}
}

func TestStructurerRejectsMalformedArtifact(t *testing.T) {
	store := newStore(t)
	structurer := stages.NewStructurer(store, testBucket, nil)

	n := putObject(t, store, "text/bad1.txt", []byte("no frontmatter here"), "text/plain")
	_, err := structurer.Process(context.Background(), n)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestLoaderCommitsBatch(t *testing.T) {
	store := newStore(t)
	wh, err := warehouse.Open("sqlite:" + filepath.Join(t.TempDir(), "warehouse.db"))
	if err != nil {
		t.Fatalf("warehouse.Open: %v", err)
	}
	defer wh.Close()
	loader := stages.NewLoader(store, wh, nil)

	batch := warehouse.StagedBatch{
		FileID:   "abc123",
		RegionID: "region-1",
		Rows: []warehouse.StagedRow{
			{RowNo: 1, Content: "first row"},
			{RowNo: 2, Content: "second row"},
		},
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	n := putObject(t, store, "clean/abc123.json", payload, "application/json")

	out, err := loader.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.Final {
		t.Fatal("load must be the final stage")
	}
	if out.Metadata["rows_loaded"] != int64(2) {
		t.Fatalf("rows_loaded = %v, want 2", out.Metadata["rows_loaded"])
	}
	if out.Metadata["cache_hit"] != false {
		t.Fatalf("cache_hit = %v, want false", out.Metadata["cache_hit"])
	}

	// Retried load of the same batch merges nothing.
	out, err = loader.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("retried Process: %v", err)
	}
	if out.Metadata["cache_hit"] != true {
		t.Fatalf("retried cache_hit = %v, want true", out.Metadata["cache_hit"])
	}
	count, err := wh.RowCount(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("RowCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("RowCount = %d, want 2", count)
	}
}

func TestLoaderRejectsCorruptBatch(t *testing.T) {
	store := newStore(t)
	wh, err := warehouse.Open("sqlite:" + filepath.Join(t.TempDir(), "warehouse.db"))
	if err != nil {
		t.Fatalf("warehouse.Open: %v", err)
	}
	defer wh.Close()
	loader := stages.NewLoader(store, wh, nil)

	n := putObject(t, store, "clean/bad1.json", []byte("{not json"), "application/json")
	if _, err := loader.Process(context.Background(), n); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}
