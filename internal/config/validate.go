package config

import (
	"fmt"
	"net/url"
)

// Valid enum values for logging options.
var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}
)

// Validate checks structural constraints on a Config. Duration strings are
// checked separately by Resolve. An empty remote base_url is allowed;
// offline-only use (enqueue + status) never touches the remote store.
func Validate(cfg *Config) error {
	if cfg.Sync.BatchSize <= 0 {
		return fmt.Errorf("config: sync.batch_size must be positive, got %d", cfg.Sync.BatchSize)
	}

	if cfg.Sync.MaxRetries < 0 {
		return fmt.Errorf("config: sync.max_retries must be non-negative, got %d", cfg.Sync.MaxRetries)
	}

	if cfg.Remote.BaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.Remote.BaseURL); err != nil {
			return fmt.Errorf("config: remote.base_url: %w", err)
		}
	}

	if cfg.Callback.Stream && cfg.Callback.StreamURL == "" {
		return fmt.Errorf("config: callback.stream enabled but callback.stream_url is empty")
	}

	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("config: logging.level: unknown level %q", cfg.Logging.Level)
	}

	if !validLogFormats[cfg.Logging.Format] {
		return fmt.Errorf("config: logging.format: unknown format %q", cfg.Logging.Format)
	}

	return nil
}
