package testsupport

import (
	"context"
	"testing"

	"imagepush/internal/config"
	"imagepush/internal/ledger"
)

// MustOpenLedger opens the config's ledger for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(context.Background(), cfg.Paths.LedgerPath)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SeedRecord commits one record and its owner directly into store.
func SeedRecord(t testing.TB, store *ledger.Store, owner ledger.Owner, record ledger.Record) {
	t.Helper()

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.UpsertOwner(ctx, owner); err != nil {
		t.Fatalf("UpsertOwner: %v", err)
	}
	record.OwnerID = owner.ID
	if err := tx.RecordItem(ctx, record); err != nil {
		t.Fatalf("RecordItem: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}
