package config

// Default values for configuration options. These are the "layer 0" of the
// override chain and are chosen so the engine works out of the box against
// a local test stack without any config file.
const (
	defaultRequestTimeout = "30s"
	defaultBatchSize      = 25
	defaultMaxRetries     = 5
	defaultPollInterval   = "5m"
	defaultBackoffBase    = "1s"
	defaultBackoffMax     = "60s"
	defaultJobTimeout     = "10m"
	defaultScanInterval   = "1m"
	defaultListenAddr     = ":8787"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding (unset fields retain defaults) and
// the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			RequestTimeout: defaultRequestTimeout,
		},
		Sync: SyncConfig{
			BatchSize:    defaultBatchSize,
			MaxRetries:   defaultMaxRetries,
			PollInterval: defaultPollInterval,
			BackoffBase:  defaultBackoffBase,
			BackoffMax:   defaultBackoffMax,
		},
		Jobs: JobsConfig{
			Timeout:      defaultJobTimeout,
			ScanInterval: defaultScanInterval,
		},
		Callback: CallbackConfig{
			ListenAddr: defaultListenAddr,
		},
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
