package syncengine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"imagepush/internal/inventory"
	"imagepush/internal/ledger"
	"imagepush/internal/logging"
	"imagepush/internal/publisher"
	"imagepush/internal/services"
	"imagepush/internal/sidecar"
)

const (
	stageScan    = "scan"
	stageLoad    = "load"
	stagePublish = "publish"
	stageRecord  = "record"
)

// Engine runs sync passes over one source directory.
type Engine struct {
	opts      Options
	scanner   Scanner
	loader    Loader
	publisher Publisher
	ledger    Ledger
	reporter  Reporter
	logger    *slog.Logger
	now       func() time.Time
}

// New validates options and collaborators and returns an engine.
func New(opts Options, deps Dependencies) (*Engine, error) {
	normalized, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	switch {
	case deps.Scanner == nil:
		return nil, errors.New("syncengine: scanner is required")
	case deps.Loader == nil:
		return nil, errors.New("syncengine: loader is required")
	case deps.Publisher == nil:
		return nil, errors.New("syncengine: publisher is required")
	case deps.Ledger == nil:
		return nil, errors.New("syncengine: ledger is required")
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Engine{
		opts:      normalized,
		scanner:   deps.Scanner,
		loader:    deps.Loader,
		publisher: deps.Publisher,
		ledger:    deps.Ledger,
		reporter:  reporter,
		logger:    logging.NewComponentLogger(deps.Logger, "sync"),
		now:       time.Now,
	}, nil
}

// Run performs one sync pass. The returned report is populated even when an
// error aborts the run.
func (e *Engine) Run(ctx context.Context) (report Report, err error) {
	start := e.now()
	report.RunID = uuid.NewString()
	ctx = services.WithRunID(ctx, report.RunID)
	logger := logging.WithContext(ctx, e.logger)
	defer func() {
		report.Duration = e.now().Sub(start)
	}()

	local, err := e.scanner.List(e.opts.Root)
	if err != nil {
		return report, services.Wrap(services.ErrValidation, stageScan, "list directory", e.opts.Root, err)
	}
	recorded, err := e.ledger.SyncedIdentifiers(ctx)
	if err != nil {
		return report, fmt.Errorf("read synced identifiers: %w", err)
	}
	pending := local.Difference(recorded)

	report.Total = len(local)
	report.Pending = len(pending)
	e.reporter.Pending(report.Pending, report.Total)
	logger.Info("sync delta computed",
		logging.Int("local", report.Total),
		logging.Int("recorded", len(recorded)),
		logging.Int("pending", report.Pending),
		logging.String(logging.FieldEventType, "sync_delta"),
	)
	if report.Pending == 0 {
		return report, nil
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.Concurrency)

	for _, id := range pending.Sorted() {
		id := id // per-iteration copy (pre-Go 1.22 loop semantics)
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return nil
			}
			err := e.processItem(groupCtx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Published++
				return nil
			case groupCtx.Err() != nil && errors.Is(err, context.Canceled):
				// Interrupted by another item's abort; left pending.
				return nil
			case services.IsItemScoped(err):
				report.Failed++
				report.Failures = append(report.Failures, ItemFailure{ID: id, Kind: failureKind(err), Err: err})
				if e.opts.FailurePolicy == FailSkip {
					logging.WarnWithContext(logging.WithContext(services.WithItemID(ctx, id), e.logger), "item skipped", "item_skipped",
						logging.Error(err),
						logging.String("failure_kind", failureKind(err)),
						logging.String(logging.FieldErrorHint, "fix the sidecar or image and rerun"),
					)
					return nil
				}
				return err
			default:
				report.Failed++
				report.Failures = append(report.Failures, ItemFailure{ID: id, Kind: failureKind(err), Err: err})
				return err
			}
		})
	}

	runErr := group.Wait()
	report.Skipped = report.Pending - report.Published - report.Failed
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}

	attrs := []logging.Attr{
		logging.Int("published", report.Published),
		logging.Int("failed", report.Failed),
		logging.Int("skipped", report.Skipped),
		logging.Duration("elapsed", e.now().Sub(start)),
		logging.String(logging.FieldEventType, "sync_complete"),
	}
	if runErr != nil {
		logging.ErrorWithContext(logger, "sync aborted", "sync_aborted", append(attrs, logging.Error(runErr))...)
		return report, runErr
	}
	logger.Info("sync complete", logging.Args(attrs...)...)
	return report, nil
}

// processItem moves one item from Pending to Recorded.
func (e *Engine) processItem(ctx context.Context, id string) error {
	ctx = services.WithItemID(ctx, id)
	logger := logging.WithContext(ctx, e.logger)

	desc, imagePath, err := e.loadItem(ctx, id)
	if err != nil {
		return err
	}
	logger.Debug("metadata loaded",
		logging.String("owner_id", desc.Owner.ID),
		logging.Int("tags", len(desc.Tags)),
		logging.String("image", imagePath),
	)

	e.reporter.Publishing(id, desc)
	tags := PrefixTags(e.opts.TagPrefix, desc.Tags)
	remoteID, err := e.publisher.Publish(services.WithStage(ctx, stagePublish), publisher.Request{
		URL:            desc.URL,
		ImagePath:      imagePath,
		Tags:           tags,
		Private:        false,
		IdempotencyKey: publisher.IdempotencyKey(id),
	})
	if err != nil {
		if !errors.Is(err, services.ErrPublish) {
			err = services.Wrap(services.ErrPublish, stagePublish, "upload", id, err)
		}
		return err
	}
	logger.Info("item published", logging.String("remote_id", remoteID))

	// A published item must be recorded even if the run is being cancelled.
	recordCtx := context.WithoutCancel(ctx)
	if err := e.record(recordCtx, id, desc, tags, remoteID); err != nil {
		logging.ErrorWithContext(logger, "published item not recorded", "record_failed",
			logging.String("remote_id", remoteID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the item will be published again on the next run"),
		)
		return err
	}
	logger.Info("item recorded",
		logging.String("remote_id", remoteID),
		logging.String(logging.FieldEventType, "item_recorded"),
	)
	return nil
}

func (e *Engine) loadItem(ctx context.Context, id string) (sidecar.ItemDescription, string, error) {
	sidecarPath := filepath.Join(e.opts.Root, id+".json")
	desc, err := e.loader.Load(sidecarPath)
	if err != nil {
		if kind, ok := sidecar.KindOf(err); ok && kind == sidecar.MissingFile {
			logging.WarnWithContext(logging.WithContext(ctx, e.logger), "file in source directory has no sidecar", "sidecar_missing",
				logging.String("files", strings.Join(e.filesFor(id), ",")),
				logging.String(logging.FieldErrorHint, "move files that are not items out of the source directory"),
			)
		}
		if !errors.Is(err, services.ErrMetadata) {
			err = services.Wrap(services.ErrMetadata, stageLoad, "load sidecar", sidecarPath, err)
		}
		return sidecar.ItemDescription{}, "", err
	}
	if e.opts.SidecarIDCheck == SidecarIDReject {
		if err := sidecar.CheckIdentifier(desc, id, sidecarPath); err != nil {
			return sidecar.ItemDescription{}, "", err
		}
	}
	imagePath, err := e.resolveImage(id)
	if err != nil {
		return sidecar.ItemDescription{}, "", err
	}
	return desc, imagePath, nil
}

// resolveImage returns the first payload matching ImageExtensions. Extensions
// compare case-insensitively, so a.JPG satisfies ".jpg".
func (e *Engine) resolveImage(id string) (string, error) {
	for _, ext := range e.opts.ImageExtensions {
		candidate := filepath.Join(e.opts.Root, id+ext)
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}
	names := e.filesFor(id)
	for _, ext := range e.opts.ImageExtensions {
		for _, name := range names {
			if strings.EqualFold(name, id+ext) {
				return filepath.Join(e.opts.Root, name), nil
			}
		}
	}
	pattern := filepath.Join(e.opts.Root, id+".*")
	return "", sidecar.NewMetadataError(sidecar.MissingFile, pattern, fmt.Errorf("no image with extensions %v: %w", e.opts.ImageExtensions, fs.ErrNotExist))
}

// filesFor lists the regular files in the source directory that map to id.
func (e *Engine) filesFor(id string) []string {
	entries, err := os.ReadDir(e.opts.Root)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && inventory.IdentifierFor(entry.Name()) == id {
			names = append(names, entry.Name())
		}
	}
	return names
}

func (e *Engine) record(ctx context.Context, id string, desc sidecar.ItemDescription, tags []string, remoteID string) (err error) {
	ctx = services.WithStage(ctx, stageRecord)
	tx, err := e.ledger.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	handle, err := tx.UpsertOwner(ctx, ledger.Owner{
		ID:     desc.Owner.ID,
		Name:   desc.Owner.Name,
		Handle: desc.Owner.Handle,
	})
	if err != nil {
		return err
	}
	if handle.Created {
		logging.WithContext(ctx, e.logger).Debug("owner created", logging.String("owner_id", handle.ID))
	}
	if err = tx.RecordItem(ctx, ledger.Record{
		LocalID:    id,
		RemoteID:   remoteID,
		Title:      desc.Title,
		OwnerID:    handle.ID,
		URL:        desc.URL,
		Tags:       tags,
		RecordedAt: e.now(),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func failureKind(err error) string {
	if kind, ok := sidecar.KindOf(err); ok {
		return string(kind)
	}
	switch {
	case errors.Is(err, services.ErrPublish):
		return "publish"
	case errors.Is(err, services.ErrDuplicateKey):
		return "duplicate_key"
	default:
		return "ledger"
	}
}

type nopReporter struct{}

func (nopReporter) Pending(int, int)                            {}
func (nopReporter) Publishing(string, sidecar.ItemDescription) {}
