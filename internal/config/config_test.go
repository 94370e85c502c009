package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	return path
}

func TestLoadDefaults(t *testing.T) {
	r, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}

	if r.Config.Sync.BatchSize != defaultBatchSize {
		t.Errorf("batch size = %d, want %d", r.Config.Sync.BatchSize, defaultBatchSize)
	}

	if r.PollInterval != 5*time.Minute {
		t.Errorf("poll interval = %v, want 5m", r.PollInterval)
	}

	if r.BackoffBase != time.Second || r.BackoffMax != 60*time.Second {
		t.Errorf("backoff = %v..%v, want 1s..60s", r.BackoffBase, r.BackoffMax)
	}

	if r.JobTimeout != 10*time.Minute {
		t.Errorf("job timeout = %v, want 10m", r.JobTimeout)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[remote]
base_url = "https://api.example.com"
request_timeout = "10s"

[sync]
batch_size = 50
max_retries = 3
backoff_base = "500ms"
backoff_max = "30s"

[logging]
level = "debug"
`)

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if r.Config.Sync.BatchSize != 50 {
		t.Errorf("batch size = %d, want 50", r.Config.Sync.BatchSize)
	}

	if r.RequestTimeout != 10*time.Second {
		t.Errorf("request timeout = %v, want 10s", r.RequestTimeout)
	}

	if r.BackoffBase != 500*time.Millisecond {
		t.Errorf("backoff base = %v, want 500ms", r.BackoffBase)
	}

	// Unset keys keep their defaults.
	if r.Config.Jobs.Timeout != defaultJobTimeout {
		t.Errorf("jobs timeout = %q, want default %q", r.Config.Jobs.Timeout, defaultJobTimeout)
	}

	if r.Config.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", r.Config.Logging.Level)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
[sync]
poll_interval = "often"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}

	if !strings.Contains(err.Error(), "sync.poll_interval") {
		t.Errorf("error %q does not name the offending key", err)
	}
}

func TestLoadRejectsBackoffBaseAboveMax(t *testing.T) {
	path := writeConfig(t, `
[sync]
backoff_base = "2m"
backoff_max = "30s"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for backoff_base > backoff_max")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults pass", func(*Config) {}, ""},
		{"zero batch size", func(c *Config) { c.Sync.BatchSize = 0 }, "batch_size"},
		{"negative retries", func(c *Config) { c.Sync.MaxRetries = -1 }, "max_retries"},
		{"bad base url", func(c *Config) { c.Remote.BaseURL = "not a url" }, "base_url"},
		{"stream without url", func(c *Config) { c.Callback.Stream = true }, "stream_url"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }, "level"},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, "format"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := Validate(cfg)

			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate failed: %v", err)
				}

				return
			}

			if err == nil {
				t.Fatal("expected validation error")
			}

			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}
