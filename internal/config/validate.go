package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is structurally usable. Values that may
// still arrive from the command line (API root, key, directories) are checked
// by ValidateForPush instead.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	return nil
}

// ValidateForPush ensures every value a sync run needs is present.
func (c *Config) ValidateForPush() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.base_url is required (pass the API root or set IMAGEPUSH_API_URL)")
	}
	if strings.TrimSpace(c.API.APIKey) == "" {
		return errors.New("api.api_key is required (pass the API key or set IMAGEPUSH_API_KEY)")
	}
	if strings.TrimSpace(c.Paths.LedgerPath) == "" {
		return errors.New("paths.ledger_path must be set")
	}
	if strings.TrimSpace(c.Paths.SourceDir) == "" {
		return errors.New("paths.source_dir must be set")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if base := strings.TrimSpace(c.API.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("api.base_url: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("api.base_url must use http or https, got %q", base)
		}
		if parsed.Host == "" {
			return fmt.Errorf("api.base_url must include a host, got %q", base)
		}
	}
	if err := ensurePositiveMap(map[string]int{
		"api.timeout_seconds": c.API.TimeoutSeconds,
		"api.retry_attempts":  c.API.RetryAttempts,
	}); err != nil {
		return err
	}
	if c.API.RequestsPerSecond < 0 {
		return errors.New("api.requests_per_second must be >= 0 (0 disables rate limiting)")
	}
	return nil
}

func (c *Config) validateSync() error {
	switch c.Sync.FailurePolicy {
	case FailurePolicyAbort, FailurePolicySkip:
	default:
		return fmt.Errorf("sync.failure_policy must be %q or %q, got %q", FailurePolicyAbort, FailurePolicySkip, c.Sync.FailurePolicy)
	}
	switch c.Sync.SidecarIDCheck {
	case SidecarIDReject, SidecarIDTrust:
	default:
		return fmt.Errorf("sync.sidecar_id_check must be %q or %q, got %q", SidecarIDReject, SidecarIDTrust, c.Sync.SidecarIDCheck)
	}
	if c.Sync.Concurrency <= 0 {
		return errors.New("sync.concurrency must be positive")
	}
	if strings.ContainsAny(c.Sync.TagPrefix, " \t\n") {
		return errors.New("sync.tag_prefix must not contain whitespace")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
