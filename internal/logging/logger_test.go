package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"eduscale/internal/config"
	"eduscale/internal/logging"
	"eduscale/internal/services"
)

func logToFile(t *testing.T, opts logging.Options, emit func(*slog.Logger)) string {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "test.log")
	opts.OutputPaths = []string{logPath}
	opts.ErrorOutputPaths = []string{logPath}

	logger, err := logging.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	emit(logger)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	cfg.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Info("startup message")

	content, err := os.ReadFile(filepath.Join(cfg.LogDir, "eduscale.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "startup message") {
		t.Fatalf("log file missing message: %q", content)
	}
}

func TestConsoleHandlerFormatsComponentPrefix(t *testing.T) {
	out := logToFile(t, logging.Options{Format: "console", Level: "info"}, func(logger *slog.Logger) {
		logger.Info("object stored",
			logging.String(logging.FieldComponent, "storage"),
			logging.String("object_path", "uploads/r1/a_b.txt"),
		)
	})

	if !strings.Contains(out, "INFO storage: object stored") {
		t.Fatalf("unexpected console line: %q", out)
	}
	if !strings.Contains(out, "object_path=uploads/r1/a_b.txt") {
		t.Fatalf("missing field in console line: %q", out)
	}
}

func TestConsoleCallerOnlyAtDebugLevel(t *testing.T) {
	info := logToFile(t, logging.Options{Format: "console", Level: "info"}, func(logger *slog.Logger) {
		logger.Info("no caller expected")
	})
	if strings.Contains(info, ".go:") {
		t.Fatalf("info-level log should omit caller: %q", info)
	}

	debug := logToFile(t, logging.Options{Format: "console", Level: "debug"}, func(logger *slog.Logger) {
		logger.Info("caller expected")
	})
	if !strings.Contains(debug, ".go:") {
		t.Fatalf("debug-level log should include caller: %q", debug)
	}
}

func TestJSONHandlerFieldNames(t *testing.T) {
	out := logToFile(t, logging.Options{Format: "json", Level: "info"}, func(logger *slog.Logger) {
		logger.Info("delivery complete", logging.Int("attempts", 3))
	})

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &entry); err != nil {
		t.Fatalf("decode JSON line %q: %v", out, err)
	}
	if entry["msg"] != "delivery complete" || entry["level"] != "info" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("missing ts field: %v", entry)
	}
	if entry["attempts"] != float64(3) {
		t.Fatalf("attempts = %v", entry["attempts"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWithContextAddsStandardFields(t *testing.T) {
	ctx := services.WithFileID(context.Background(), "abc123")
	ctx = services.WithStage(ctx, "extract")

	fields := logging.ContextFields(ctx)
	keys := make(map[string]string, len(fields))
	for _, attr := range fields {
		keys[attr.Key] = attr.Value.String()
	}
	if keys[logging.FieldFileID] != "abc123" {
		t.Fatalf("file id field = %q", keys[logging.FieldFileID])
	}
	if keys[logging.FieldStage] != "extract" {
		t.Fatalf("stage field = %q", keys[logging.FieldStage])
	}

	if logger := logging.WithContext(ctx, nil); logger == nil {
		t.Fatal("WithContext should fall back to a usable logger")
	}
}
