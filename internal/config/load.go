package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and resolves all
// duration strings. Decoding starts from DefaultConfig so unset keys retain
// their defaults.
func Load(path string) (*Resolved, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return Resolve(cfg)
}

// LoadOrDefault reads a TOML config file if it exists, otherwise resolves
// pure defaults. This supports a zero-config first run: the queue works
// locally before the remote store is ever configured.
func LoadOrDefault(path string) (*Resolved, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Resolve(DefaultConfig())
	}

	return Load(path)
}

// Resolve validates cfg and parses its duration strings into a Resolved.
func Resolve(cfg *Config) (*Resolved, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	r := &Resolved{Config: cfg}

	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"remote.request_timeout", cfg.Remote.RequestTimeout, &r.RequestTimeout},
		{"sync.poll_interval", cfg.Sync.PollInterval, &r.PollInterval},
		{"sync.backoff_base", cfg.Sync.BackoffBase, &r.BackoffBase},
		{"sync.backoff_max", cfg.Sync.BackoffMax, &r.BackoffMax},
		{"jobs.timeout", cfg.Jobs.Timeout, &r.JobTimeout},
		{"jobs.scan_interval", cfg.Jobs.ScanInterval, &r.ScanInterval},
	} {
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("config: %s: invalid duration %q", d.key, d.raw)
		}

		if v <= 0 {
			return nil, fmt.Errorf("config: %s: duration must be positive, got %q", d.key, d.raw)
		}

		*d.dst = v
	}

	if r.BackoffBase > r.BackoffMax {
		return nil, fmt.Errorf("config: sync.backoff_base %q exceeds sync.backoff_max %q",
			cfg.Sync.BackoffBase, cfg.Sync.BackoffMax)
	}

	return r, nil
}
