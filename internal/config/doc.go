// Package config loads, validates, and normalizes the TOML configuration
// consumed by the daemon and CLI.
package config
