package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Storage contains configuration for the local object store.
type Storage struct {
	Root         string `toml:"root"`
	Bucket       string `toml:"bucket"`
	WatchUploads bool   `toml:"watch_uploads"`
}

// Rules contains configuration for the routing rule set.
type Rules struct {
	Path string `toml:"path"`
}

// Delivery contains retry and concurrency parameters for notification delivery.
type Delivery struct {
	BaseDelaySeconds      int               `toml:"base_delay_seconds"`
	BackoffMultiplier     int               `toml:"backoff_multiplier"`
	MaxAttempts           int               `toml:"max_attempts"`
	RequestTimeoutSeconds int               `toml:"request_timeout_seconds"`
	MaxInFlight           int               `toml:"max_in_flight"`
	Endpoints             map[string]string `toml:"endpoints"`
}

// Pipeline contains size guards for stage processing.
type Pipeline struct {
	MaxFileSizeMB      int `toml:"max_file_size_mb"`
	MaxArchiveSizeMB   int `toml:"max_archive_size_mb"`
	MaxFilesPerArchive int `toml:"max_files_per_archive"`
}

// Warehouse contains configuration for the analytical store.
type Warehouse struct {
	DSN string `toml:"dsn"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completion     bool   `toml:"completion"`
	Errors         bool   `toml:"errors"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the root configuration structure.
type Config struct {
	Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	Rules         Rules         `toml:"rules"`
	Delivery      Delivery      `toml:"delivery"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Warehouse     Warehouse     `toml:"warehouse"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the expected location of the user configuration file.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "eduscale", "config.toml"), nil
}

// Load reads configuration from the provided path, falling back to
// EDUSCALE_CONFIG and then the default location. It returns the effective
// config, the resolved path, and whether a file was actually found.
func Load(path string) (*Config, string, bool, error) {
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		resolved = strings.TrimSpace(os.Getenv("EDUSCALE_CONFIG"))
	}
	if resolved == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, "", false, err
		}
		resolved = defaultPath
	}
	resolved = expandPath(resolved)

	cfg := Default()
	data, err := os.ReadFile(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		cfg.normalize()
		return &cfg, resolved, false, nil
	}
	if err != nil {
		return nil, resolved, false, fmt.Errorf("read config %s: %w", resolved, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, resolved, true, fmt.Errorf("parse config %s: %w", resolved, err)
	}
	cfg.normalize()
	return &cfg, resolved, true, nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the directories the daemon needs at runtime.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.LogDir, c.Storage.Root}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// WarehouseDSN returns the configured warehouse DSN, defaulting to a SQLite
// database under the data directory.
func (c *Config) WarehouseDSN() string {
	if dsn := strings.TrimSpace(c.Warehouse.DSN); dsn != "" {
		return dsn
	}
	return "sqlite:" + filepath.Join(c.DataDir, "warehouse.db")
}
