package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeSync()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LedgerPath) == "" {
		c.Paths.LedgerPath = defaultLedgerPath
	}
	if c.Paths.LedgerPath, err = expandPath(strings.TrimSpace(c.Paths.LedgerPath)); err != nil {
		return fmt.Errorf("paths.ledger_path: %w", err)
	}
	if c.Paths.SourceDir, err = expandPath(strings.TrimSpace(c.Paths.SourceDir)); err != nil {
		return fmt.Errorf("paths.source_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	if c.API.APIKey == "" {
		if value, ok := os.LookupEnv("IMAGEPUSH_API_KEY"); ok {
			c.API.APIKey = value
		}
	}
	if c.API.BaseURL == "" {
		if value, ok := os.LookupEnv("IMAGEPUSH_API_URL"); ok {
			c.API.BaseURL = value
		}
	}
	c.API.APIKey = strings.TrimSpace(c.API.APIKey)
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.API.RetryAttempts <= 0 {
		c.API.RetryAttempts = 1
	}
}

func (c *Config) normalizeSync() {
	c.Sync.FailurePolicy = strings.ToLower(strings.TrimSpace(c.Sync.FailurePolicy))
	if c.Sync.FailurePolicy == "" {
		c.Sync.FailurePolicy = FailurePolicyAbort
	}
	c.Sync.SidecarIDCheck = strings.ToLower(strings.TrimSpace(c.Sync.SidecarIDCheck))
	if c.Sync.SidecarIDCheck == "" {
		c.Sync.SidecarIDCheck = SidecarIDReject
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = defaultConcurrency
	}
	if len(c.Sync.ImageExtensions) == 0 {
		c.Sync.ImageExtensions = defaultImageExtensions()
		return
	}
	exts := make([]string, 0, len(c.Sync.ImageExtensions))
	seen := make(map[string]struct{}, len(c.Sync.ImageExtensions))
	for _, ext := range c.Sync.ImageExtensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = defaultImageExtensions()
	}
	c.Sync.ImageExtensions = exts
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = 0
	}
}
