package ledger_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"imagepush/internal/ledger"
	"imagepush/internal/services"
	"imagepush/internal/testsupport"
)

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.SchemaVersion != "002_recorded_at" {
		t.Fatalf("SchemaVersion = %q", stats.SchemaVersion)
	}
	if stats.Records != 0 || stats.Owners != 0 {
		t.Fatalf("expected empty ledger, got %+v", stats)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := ledger.Open(ctx, cfg.Paths.LedgerPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.SyncedIdentifiers(ctx); err != nil {
		t.Fatalf("SyncedIdentifiers after reopen: %v", err)
	}
}

func TestCommitMakesRecordVisible(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	handle, err := tx.UpsertOwner(ctx, ledger.Owner{ID: "o1", Name: "Real Name", Handle: "alias"})
	if err != nil {
		t.Fatalf("UpsertOwner: %v", err)
	}
	if !handle.Created || handle.ID != "o1" {
		t.Fatalf("unexpected handle %+v", handle)
	}
	recordedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := tx.RecordItem(ctx, ledger.Record{
		LocalID:    "a",
		RemoteID:   "r-a",
		Title:      "Sunset",
		OwnerID:    handle.ID,
		URL:        "https://example.com/a",
		Tags:       []string{"beach", "sunset"},
		RecordedAt: recordedAt,
	}); err != nil {
		t.Fatalf("RecordItem: %v", err)
	}

	ids, err := store.SyncedIdentifiers(ctx)
	if err != nil {
		t.Fatalf("SyncedIdentifiers: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("uncommitted record visible: %v", ids)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	ids, err = store.SyncedIdentifiers(ctx)
	if err != nil {
		t.Fatalf("SyncedIdentifiers: %v", err)
	}
	if _, ok := ids["a"]; !ok || len(ids) != 1 {
		t.Fatalf("ids = %v, want [a]", ids)
	}

	entry, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry == nil {
		t.Fatal("expected entry for a")
	}
	if entry.RemoteID != "r-a" || entry.Title != "Sunset" || entry.URL != "https://example.com/a" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if !reflect.DeepEqual(entry.Tags, []string{"beach", "sunset"}) {
		t.Fatalf("tags = %v", entry.Tags)
	}
	if !entry.RecordedAt.Equal(recordedAt) {
		t.Fatalf("RecordedAt = %v", entry.RecordedAt)
	}
	if entry.Owner.Name != "Real Name" || entry.Owner.Handle != "alias" {
		t.Fatalf("owner = %+v", entry.Owner)
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tx.UpsertOwner(ctx, ledger.Owner{ID: "o1"}); err != nil {
		t.Fatalf("UpsertOwner: %v", err)
	}
	if err := tx.RecordItem(ctx, ledger.Record{LocalID: "a", RemoteID: "r", OwnerID: "o1"}); err != nil {
		t.Fatalf("RecordItem: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	// A second rollback and a fresh Begin must not deadlock on the write lock.
	if err := tx.Rollback(); err != nil {
		t.Fatalf("second Rollback: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Records != 0 || stats.Owners != 0 {
		t.Fatalf("rollback left rows behind: %+v", stats)
	}
	entry, err := store.Get(ctx, "a")
	if err != nil || entry != nil {
		t.Fatalf("Get after rollback = %+v, %v", entry, err)
	}
}

func TestUpsertOwnerDeduplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	testsupport.SeedRecord(t, store, ledger.Owner{ID: "o1", Name: "First"}, ledger.Record{LocalID: "a", RemoteID: "r-a"})

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	handle, err := tx.UpsertOwner(ctx, ledger.Owner{ID: "o1", Name: "Second"})
	if err != nil {
		t.Fatalf("UpsertOwner: %v", err)
	}
	if handle.Created {
		t.Fatal("expected existing owner to be reused")
	}
	if err := tx.RecordItem(ctx, ledger.Record{LocalID: "b", RemoteID: "r-b", OwnerID: handle.ID}); err != nil {
		t.Fatalf("RecordItem: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Owners != 1 || stats.Records != 2 {
		t.Fatalf("stats = %+v, want 1 owner 2 records", stats)
	}
	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, entry := range entries {
		if entry.OwnerID != "o1" || entry.Owner.Name != "First" {
			t.Fatalf("entry %s owner = %+v", entry.LocalID, entry.Owner)
		}
	}
}

func TestRecordItemDuplicateKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	testsupport.SeedRecord(t, store, ledger.Owner{ID: "o1"}, ledger.Record{LocalID: "a", RemoteID: "r-a"})

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()
	err = tx.RecordItem(ctx, ledger.Record{LocalID: "a", RemoteID: "r-a2", OwnerID: "o1"})
	if !errors.Is(err, ledger.ErrDuplicateKey) || !errors.Is(err, services.ErrDuplicateKey) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
	if services.IsItemScoped(err) {
		t.Fatal("duplicate key must not be item scoped")
	}
}

func TestRecordItemRequiresKnownOwner(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()
	err = tx.RecordItem(ctx, ledger.Record{LocalID: "a", RemoteID: "r", OwnerID: "ghost"})
	if err == nil {
		t.Fatal("expected foreign key failure")
	}
	if errors.Is(err, ledger.ErrDuplicateKey) {
		t.Fatalf("foreign key failure misreported as duplicate: %v", err)
	}
}

func TestListOrdersByRecordedAtAndLimits(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		testsupport.SeedRecord(t, store, ledger.Owner{ID: "o1"}, ledger.Record{
			LocalID:    id,
			RemoteID:   "r-" + id,
			RecordedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	entries, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].LocalID != "c" || entries[1].LocalID != "b" {
		t.Fatalf("unexpected entries %+v", entries)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if !stats.LastRecordedAt.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("LastRecordedAt = %v", stats.LastRecordedAt)
	}
}

func TestBeginSerializesWriters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tx, err := store.Begin(ctx)
			if err != nil {
				errs <- err
				return
			}
			defer func() { _ = tx.Rollback() }()
			if _, err := tx.UpsertOwner(ctx, ledger.Owner{ID: "shared"}); err != nil {
				errs <- err
				return
			}
			id := string(rune('a' + n))
			if err := tx.RecordItem(ctx, ledger.Record{LocalID: id, RemoteID: "r-" + id, OwnerID: "shared"}); err != nil {
				errs <- err
				return
			}
			errs <- tx.Commit()
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent writer failed: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Records != 8 || stats.Owners != 1 {
		t.Fatalf("stats = %+v, want 8 records 1 owner", stats)
	}
}

func TestAcquireRunLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	first, err := ledger.AcquireRunLock(path)
	if err != nil {
		t.Fatalf("first AcquireRunLock: %v", err)
	}
	if _, err := ledger.AcquireRunLock(path); !errors.Is(err, ledger.ErrLedgerBusy) {
		t.Fatalf("expected ErrLedgerBusy, got %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	second, err := ledger.AcquireRunLock(path)
	if err != nil {
		t.Fatalf("AcquireRunLock after release: %v", err)
	}
	_ = second.Release()
}
