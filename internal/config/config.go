// Package config implements TOML configuration loading, validation, and
// default resolution for herdbook. The override chain is deliberately short
// (defaults -> config file -> CLI flags): the engine runs on a single user's
// device and does not need per-profile machinery.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
// Duration-valued options are stored as strings ("5m", "90s") and parsed
// into a Resolved struct by Resolve(), so validation errors name the exact
// offending key instead of failing deep inside the engine.
type Config struct {
	Remote   RemoteConfig   `toml:"remote"`
	Sync     SyncConfig     `toml:"sync"`
	Jobs     JobsConfig     `toml:"jobs"`
	Callback CallbackConfig `toml:"callback"`
	Logging  LoggingConfig  `toml:"logging"`
}

// RemoteConfig describes the remote journal store and its OAuth2
// client-credentials endpoint.
type RemoteConfig struct {
	BaseURL        string `toml:"base_url"`
	TokenURL       string `toml:"token_url"`
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	RequestTimeout string `toml:"request_timeout"`
}

// SyncConfig controls queue draining: batch sizing, the retry budget shared
// with the backoff policy, and the periodic sync interval in serve mode.
type SyncConfig struct {
	BatchSize    int    `toml:"batch_size"`
	MaxRetries   int    `toml:"max_retries"`
	PollInterval string `toml:"poll_interval"`
	BackoffBase  string `toml:"backoff_base"`
	BackoffMax   string `toml:"backoff_max"`
}

// JobsConfig controls the assessment job lifecycle: how long a job may sit
// in pending/processing before the monitor times it out, and how often the
// monitor scans. Job retries share sync.max_retries, so there is a single
// budget for the whole engine.
type JobsConfig struct {
	Timeout      string `toml:"timeout"`
	ScanInterval string `toml:"scan_interval"`
}

// CallbackConfig controls the assessment callback surface. Secret is the
// shared bearer token the assessment service must present; StreamURL, when
// set together with Stream, enables the websocket status stream as a push
// alternative to the HTTP callback.
type CallbackConfig struct {
	ListenAddr string `toml:"listen_addr"`
	Secret     string `toml:"secret"`
	Stream     bool   `toml:"stream"`
	StreamURL  string `toml:"stream_url"`
}

// LoggingConfig controls log output: level and handler format. Format
// "auto" picks text on a terminal and JSON otherwise.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Resolved holds the parsed duration fields of a validated Config alongside
// the raw config. Engine components take values from here so they never
// re-parse duration strings.
type Resolved struct {
	Config *Config

	RequestTimeout time.Duration
	PollInterval   time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	JobTimeout     time.Duration
	ScanInterval   time.Duration
}
