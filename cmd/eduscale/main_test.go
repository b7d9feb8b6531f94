package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"eduscale/internal/daemon"
	"eduscale/internal/status"
	"eduscale/internal/testsupport"
)

type cliTestEnv struct {
	daemon     *daemon.Daemon
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	d, err := daemon.New(cfg, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	// The API binds an ephemeral port, so the config file the CLI reads is
	// written after the daemon has started.
	cfg.APIBind = d.APIAddr()
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{daemon: d, configPath: configPath}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func waitForStage(t *testing.T, d *daemon.Daemon, fileID string, stage status.Stage) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if record, ok := d.Records().Get(fileID); ok && record.CurrentStage == stage {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("file %s never reached %s", fileID, stage)
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "running")
	requireContains(t, out, "Bucket:  ingest")

	out, _, err = runCLI(t, env.configPath, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var st daemon.Status
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode status JSON: %v", err)
	}
	if !st.Running || st.RuleCount == 0 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestFilesCommandListsAndShows(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := env.daemon.Objects().Put("ingest", "uploads/region-1/cli001_notes.txt", []byte("alpha beta\n")); err != nil {
		t.Fatalf("Put upload: %v", err)
	}
	waitForStage(t, env.daemon, "cli001", status.StageDone)

	out, _, err := runCLI(t, env.configPath, "files")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	requireContains(t, out, "cli001")
	requireContains(t, out, "done")

	out, _, err = runCLI(t, env.configPath, "files", "cli001")
	if err != nil {
		t.Fatalf("files cli001: %v", err)
	}
	requireContains(t, out, "Region:   region-1")
	requireContains(t, out, "Stage:    done")

	out, _, err = runCLI(t, env.configPath, "files", "--stage", "failed")
	if err != nil {
		t.Fatalf("files --stage failed: %v", err)
	}
	requireContains(t, out, "No tracked files.")

	if _, _, err = runCLI(t, env.configPath, "files", "--stage", "bogus"); err == nil {
		t.Fatal("expected error for unknown stage filter")
	}
}

func TestReplayCommand(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithoutWatcher())

	if _, err := env.daemon.Objects().Put("ingest", "uploads/region-2/cli002_quiz.txt", []byte("one two\n")); err != nil {
		t.Fatalf("Put upload: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "replay", "uploads/region-2/cli002_quiz.txt")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	requireContains(t, out, "Replay accepted")
	waitForStage(t, env.daemon, "cli002", status.StageDone)

	if _, _, err = runCLI(t, env.configPath, "replay", "uploads/region-2/missing.txt"); err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err := runCLI(t, env.configPath, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config at %s: %v", target, err)
	}

	if _, _, err = runCLI(t, env.configPath, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error overwriting existing config")
	}

	out, _, err = runCLI(t, env.configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "bucket = 'ingest'")
}

func TestRulesValidateAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	doc := `{
  "rules": [
    {
      "name": "uploads",
      "destination": "classify",
      "predicates": [
        {"attribute": "bucket", "operator": "exact", "value": "ingest"},
        {"attribute": "objectPath", "operator": "path-prefix-pattern", "value": "uploads/*"}
      ]
    }
  ]
}`
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "rules", "validate", path)
	if err != nil {
		t.Fatalf("rules validate: %v", err)
	}
	requireContains(t, out, "1 rules OK")

	out, _, err = runCLI(t, env.configPath, "rules", "show", path)
	if err != nil {
		t.Fatalf("rules show: %v", err)
	}
	requireContains(t, out, "uploads")
	requireContains(t, out, "classify")

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"rules":[{"name":"x","destination":"transcode","predicates":[]}]}`), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	if _, _, err = runCLI(t, env.configPath, "rules", "validate", bad); err == nil {
		t.Fatal("expected validation error")
	}
}
