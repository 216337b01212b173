package config

const (
	defaultConfigPath        = "~/.config/imagepush/config.toml"
	defaultLedgerPath        = "~/.local/share/imagepush/ledger.db"
	defaultLogDir            = "~/.local/share/imagepush/logs"
	defaultTimeoutSeconds    = 60
	defaultRequestsPerSecond = 2.0
	defaultRetryAttempts     = 3
	defaultConcurrency       = 1
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogMaxSizeMB      = 20
	defaultLogMaxBackups     = 5
	defaultLogMaxAgeDays     = 30
)

func defaultImageExtensions() []string {
	return []string{".jpg", ".jpeg", ".png", ".gif"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		API: API{
			TimeoutSeconds:    defaultTimeoutSeconds,
			RequestsPerSecond: defaultRequestsPerSecond,
			RetryAttempts:     defaultRetryAttempts,
		},
		Sync: Sync{
			FailurePolicy:   FailurePolicyAbort,
			Concurrency:     defaultConcurrency,
			SidecarIDCheck:  SidecarIDReject,
			ImageExtensions: defaultImageExtensions(),
		},
		Paths: Paths{
			LedgerPath: defaultLedgerPath,
			LogDir:     defaultLogDir,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
