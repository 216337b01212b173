package syncengine

import (
	"context"
	"log/slog"

	"imagepush/internal/inventory"
	"imagepush/internal/ledger"
	"imagepush/internal/publisher"
	"imagepush/internal/sidecar"
)

// Scanner lists item identifiers present in a directory.
type Scanner interface {
	List(dir string) (inventory.Set, error)
}

// Loader decodes one sidecar.
type Loader interface {
	Load(path string) (sidecar.ItemDescription, error)
}

// Publisher uploads one item and returns its remote identifier.
type Publisher interface {
	Publish(ctx context.Context, req publisher.Request) (string, error)
}

// Ledger is the durable record of synced items.
type Ledger interface {
	SyncedIdentifiers(ctx context.Context) (map[string]struct{}, error)
	Begin(ctx context.Context) (LedgerTx, error)
}

// LedgerTx is one ledger write unit.
type LedgerTx interface {
	UpsertOwner(ctx context.Context, owner ledger.Owner) (ledger.OwnerHandle, error)
	RecordItem(ctx context.Context, record ledger.Record) error
	Commit() error
	Rollback() error
}

// Reporter receives user-facing progress.
type Reporter interface {
	Pending(pending, total int)
	Publishing(id string, desc sidecar.ItemDescription)
}

// Dependencies bundles the engine's collaborators.
type Dependencies struct {
	Scanner   Scanner
	Loader    Loader
	Publisher Publisher
	Ledger    Ledger
	Reporter  Reporter
	Logger    *slog.Logger
}

// StoreLedger adapts a ledger.Store to the engine's Ledger interface.
func StoreLedger(store *ledger.Store) Ledger {
	return storeLedger{store: store}
}

type storeLedger struct {
	store *ledger.Store
}

func (l storeLedger) SyncedIdentifiers(ctx context.Context) (map[string]struct{}, error) {
	return l.store.SyncedIdentifiers(ctx)
}

func (l storeLedger) Begin(ctx context.Context) (LedgerTx, error) {
	tx, err := l.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}
