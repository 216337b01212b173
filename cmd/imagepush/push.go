package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"imagepush/internal/config"
	"imagepush/internal/inventory"
	"imagepush/internal/ledger"
	"imagepush/internal/logging"
	"imagepush/internal/preflight"
	"imagepush/internal/publisher"
	"imagepush/internal/services"
	"imagepush/internal/sidecar"
	"imagepush/internal/syncengine"
)

type pushArgs struct {
	apiRoot    string
	apiKey     string
	ledgerPath string
	sourceDir  string
	tagPrefix  string
}

func runPush(cmd *cobra.Command, cc *commandContext, args pushArgs) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := cc.ensureConfig()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "config", "load", "", err)
	}
	if err := cfg.ApplyRunArgs(config.RunArgs{
		APIRoot:    args.apiRoot,
		APIKey:     args.apiKey,
		LedgerPath: args.ledgerPath,
		SourceDir:  args.sourceDir,
		TagPrefix:  args.tagPrefix,
	}); err != nil {
		return services.Wrap(services.ErrConfiguration, "config", "apply arguments", "", err)
	}
	if err := cfg.ValidateForPush(); err != nil {
		return services.Wrap(services.ErrConfiguration, "config", "validate", "", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logging.NewComponentLogger(logger, "cli")

	if err := preflight.FirstFailure(preflight.RunAll(ctx, cfg)); err != nil {
		return err
	}

	lock, err := ledger.AcquireRunLock(cfg.Paths.LedgerPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release ledger lock failed", logging.Error(err), logging.String("lock", lock.Path()))
		}
	}()

	store, err := ledger.Open(ctx, cfg.Paths.LedgerPath)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := publisher.NewClient(publisher.Config{
		BaseURL:           cfg.API.BaseURL,
		APIKey:            cfg.API.APIKey,
		TimeoutSeconds:    cfg.API.TimeoutSeconds,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
	}, publisher.WithRetryMaxAttempts(cfg.API.RetryAttempts))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	engine, err := syncengine.New(syncengine.Options{
		Root:            cfg.Paths.SourceDir,
		TagPrefix:       cfg.Sync.TagPrefix,
		FailurePolicy:   syncengine.FailurePolicy(cfg.Sync.FailurePolicy),
		Concurrency:     cfg.Sync.Concurrency,
		SidecarIDCheck:  syncengine.SidecarIDPolicy(cfg.Sync.SidecarIDCheck),
		ImageExtensions: cfg.Sync.ImageExtensions,
	}, syncengine.Dependencies{
		Scanner:   inventory.Scanner{},
		Loader:    sidecar.Loader{},
		Publisher: client,
		Ledger:    syncengine.StoreLedger(store),
		Reporter:  syncengine.NewTextReporter(out, shouldColorize(out)),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	logger.Debug("sync starting",
		logging.String("source_dir", cfg.Paths.SourceDir),
		logging.String("ledger", cfg.Paths.LedgerPath),
		logging.String("endpoint", client.Endpoint()),
		logging.String("failure_policy", cfg.Sync.FailurePolicy),
		logging.Int("concurrency", cfg.Sync.Concurrency),
	)

	report, err := engine.Run(ctx)
	if err != nil {
		return err
	}
	return reportFailures(logger, report)
}

// reportFailures turns skipped item failures into a non-zero exit.
func reportFailures(logger *slog.Logger, report syncengine.Report) error {
	if report.Failed == 0 {
		return nil
	}
	errs := make([]error, 0, len(report.Failures))
	for _, failure := range report.Failures {
		logger.Debug("item failure",
			logging.String(logging.FieldItemID, failure.ID),
			logging.String("failure_kind", failure.Kind),
			logging.Error(failure.Err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", failure.ID, failure.Err))
	}
	return fmt.Errorf("%d of %d pending items failed: %w", report.Failed, report.Pending, errors.Join(errs...))
}
