package preflight

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"imagepush/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem checks a sync run depends on.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckSourceDirectory("Source directory", cfg.Paths.SourceDir),
		CheckLedgerDirectory("Ledger directory", filepath.Dir(cfg.Paths.LedgerPath)),
	}
}

// FirstFailure joins the details of failed results into one error.
func FirstFailure(results []Result) error {
	var failures []string
	for _, r := range results {
		if !r.Passed {
			failures = append(failures, r.Name+": "+r.Detail)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return errors.New("preflight failed: " + strings.Join(failures, "; "))
}
