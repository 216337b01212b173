package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// API contains connection settings for the remote content API.
type API struct {
	BaseURL           string  `toml:"base_url"`
	APIKey            string  `toml:"api_key"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	RetryAttempts     int     `toml:"retry_attempts"`
}

// Sync contains the knobs that change observable sync engine behaviour.
type Sync struct {
	TagPrefix       string   `toml:"tag_prefix"`
	FailurePolicy   string   `toml:"failure_policy"`
	Concurrency     int      `toml:"concurrency"`
	SidecarIDCheck  string   `toml:"sidecar_id_check"`
	ImageExtensions []string `toml:"image_extensions"`
}

// Paths contains the ledger location, the source directory, and the log directory.
type Paths struct {
	LedgerPath string `toml:"ledger_path"`
	SourceDir  string `toml:"source_dir"`
	LogDir     string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Config encapsulates all configuration values for imagepush.
//
// Configuration sections by subsystem:
//   - API: remote content API endpoint, credentials, timeouts, rate limit
//   - Sync: tag prefix, failure policy, concurrency, sidecar identifier policy
//   - Paths: ledger database, source directory, log directory
//   - Logging: log format, level, and file rotation
type Config struct {
	API     API     `toml:"api"`
	Sync    Sync    `toml:"sync"`
	Paths   Paths   `toml:"paths"`
	Logging Logging `toml:"logging"`
}

// RunArgs carries the positional values supplied on the command line. Non-empty
// fields override whatever the configuration file provided, except TagPrefix,
// which always replaces sync.tag_prefix.
type RunArgs struct {
	APIRoot    string
	APIKey     string
	LedgerPath string
	SourceDir  string
	TagPrefix  string
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// ApplyRunArgs merges positional command values into the configuration and
// re-normalizes the affected fields.
func (c *Config) ApplyRunArgs(args RunArgs) error {
	if v := strings.TrimSpace(args.APIRoot); v != "" {
		c.API.BaseURL = v
	}
	if v := strings.TrimSpace(args.APIKey); v != "" {
		c.API.APIKey = v
	}
	if v := strings.TrimSpace(args.LedgerPath); v != "" {
		c.Paths.LedgerPath = v
	}
	if v := strings.TrimSpace(args.SourceDir); v != "" {
		c.Paths.SourceDir = v
	}
	// The prefix is always positional, so an empty value explicitly disables prefixing.
	c.Sync.TagPrefix = args.TagPrefix
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("imagepush.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the log directory and the directory holding the ledger.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir}
	if strings.TrimSpace(c.Paths.LedgerPath) != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.LedgerPath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Failure policies accepted by sync.failure_policy.
const (
	FailurePolicyAbort = "abort"
	FailurePolicySkip  = "skip"
)

// Sidecar identifier policies accepted by sync.sidecar_id_check.
const (
	SidecarIDReject = "reject"
	SidecarIDTrust  = "trust"
)
