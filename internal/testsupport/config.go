package testsupport

import (
	"path/filepath"
	"testing"

	"imagepush/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The source directory is created empty; the ledger file is not.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.API.BaseURL = "http://127.0.0.1:0"
	cfgVal.API.APIKey = "test"
	cfgVal.API.RequestsPerSecond = 0
	cfgVal.Paths.LedgerPath = filepath.Join(base, "ledger", "ledger.db")
	cfgVal.Paths.SourceDir = filepath.Join(base, "source")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Sync.TagPrefix = "test"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	MkdirAll(t, cfgVal.Paths.SourceDir)

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPI points the test config at a remote endpoint.
func WithAPI(baseURL, key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.BaseURL = baseURL
		b.cfg.API.APIKey = key
	}
}

// WithTagPrefix overrides the tag prefix on the test config.
func WithTagPrefix(prefix string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.TagPrefix = prefix
	}
}

// WithFailurePolicy overrides sync.failure_policy on the test config.
func WithFailurePolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.FailurePolicy = policy
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.SourceDir)
}
