package config

import (
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() {
	c.DataDir = expandPath(c.DataDir)
	c.LogDir = expandPath(c.LogDir)
	c.Storage.Root = expandPath(c.Storage.Root)
	c.Rules.Path = expandPath(c.Rules.Path)
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.APIBind = strings.TrimSpace(c.APIBind)
	c.APIToken = strings.TrimSpace(c.APIToken)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Warehouse.DSN = strings.TrimSpace(c.Warehouse.DSN)

	if strings.HasPrefix(c.Warehouse.DSN, "sqlite:") {
		c.Warehouse.DSN = "sqlite:" + expandPath(strings.TrimPrefix(c.Warehouse.DSN, "sqlite:"))
	}

	for stage, endpoint := range c.Delivery.Endpoints {
		c.Delivery.Endpoints[stage] = strings.TrimSpace(endpoint)
	}
}

func expandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return filepath.Clean(path)
}
