package testsupport

import (
	"path/filepath"
	"testing"

	"eduscale/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.LogDir = filepath.Join(base, "logs")
	cfg.Storage.Root = filepath.Join(base, "storage")
	cfg.APIBind = "127.0.0.1:0"
	cfg.Notifications.NtfyTopic = ""

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithoutWatcher disables the uploads watcher on the test config.
func WithoutWatcher() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Storage.WatchUploads = false
	}
}

// WithAPIToken sets the bearer token required by the status API.
func WithAPIToken(token string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.APIToken = token
	}
}
