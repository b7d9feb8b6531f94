package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.Storage.Root) == "" {
		return errors.New("storage.root must be set")
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		return errors.New("storage.bucket must be set")
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if c.Delivery.BaseDelaySeconds <= 0 {
		return errors.New("delivery.base_delay_seconds must be positive")
	}
	if c.Delivery.BackoffMultiplier < 1 {
		return errors.New("delivery.backoff_multiplier must be at least 1")
	}
	if c.Delivery.MaxAttempts < 1 {
		return errors.New("delivery.max_attempts must be at least 1")
	}
	if c.Delivery.RequestTimeoutSeconds <= 0 {
		return errors.New("delivery.request_timeout_seconds must be positive")
	}
	if c.Delivery.MaxInFlight < 1 {
		return errors.New("delivery.max_in_flight must be at least 1")
	}
	for stage, endpoint := range c.Delivery.Endpoints {
		if strings.TrimSpace(endpoint) == "" {
			return fmt.Errorf("delivery.endpoints.%s must not be empty", stage)
		}
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.MaxFileSizeMB <= 0 {
		return errors.New("pipeline.max_file_size_mb must be positive")
	}
	if c.Pipeline.MaxArchiveSizeMB <= 0 {
		return errors.New("pipeline.max_archive_size_mb must be positive")
	}
	if c.Pipeline.MaxFilesPerArchive <= 0 {
		return errors.New("pipeline.max_files_per_archive must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
