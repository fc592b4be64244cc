package testsupport

import (
	"path/filepath"
	"testing"

	"dealpipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test
// and timing values suitable for fast test execution.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Workflow.JobPollInterval = 1
	cfg.Workflow.JobRetryBackoff = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithDedupWindow overrides the sweep activity dedup window in seconds.
func WithDedupWindow(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.ActivityDedupWindow = seconds
	}
}

// WithMaxAttempts overrides the job retry limit.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.JobMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the base retry backoff in seconds. Zero makes
// rescheduled jobs claimable immediately.
func WithRetryBackoff(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.JobRetryBackoff = seconds
	}
}
