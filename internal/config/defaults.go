package config

const (
	defaultDataDir             = "~/.local/share/dealpipe/data"
	defaultLogDir              = "~/.local/share/dealpipe/logs"
	defaultAPIBind             = "127.0.0.1:7512"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultJobPollInterval     = 2
	defaultErrorRetryInterval  = 10
	defaultJobMaxAttempts      = 3
	defaultJobRetryBackoff     = 5
	defaultSweepInterval       = 3600
	defaultActivityDedupWindow = 86400
	defaultNtfyRequestTimeout  = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Workflow: Workflow{
			JobPollInterval:     defaultJobPollInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			JobMaxAttempts:      defaultJobMaxAttempts,
			JobRetryBackoff:     defaultJobRetryBackoff,
			SweepInterval:       defaultSweepInterval,
			ActivityDedupWindow: defaultActivityDedupWindow,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			JobFailures:    true,
			SweepSummary:   false,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
