package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"imagepush/internal/services"
)

// ErrDuplicateKey reports an insert for a local identifier that is already recorded.
var ErrDuplicateKey = services.ErrDuplicateKey

// Tx is one ledger write unit.
type Tx struct {
	tx      *sql.Tx
	release func()
	once    sync.Once
}

// UpsertOwner inserts owner when its identifier is not yet present. Existing
// rows are left untouched.
func (t *Tx) UpsertOwner(ctx context.Context, owner Owner) (OwnerHandle, error) {
	id := strings.TrimSpace(owner.ID)
	if id == "" {
		return OwnerHandle{}, errors.New("upsert owner: id is required")
	}
	res, err := t.tx.ExecContext(
		ctx,
		`INSERT INTO owners (id, name, handle) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id,
		nullableString(owner.Name),
		nullableString(owner.Handle),
	)
	if err != nil {
		return OwnerHandle{}, fmt.Errorf("upsert owner: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return OwnerHandle{}, fmt.Errorf("upsert owner rows affected: %w", err)
	}
	return OwnerHandle{ID: id, Created: affected > 0}, nil
}

// RecordItem inserts one record. It fails with ErrDuplicateKey when the local
// identifier is already present.
func (t *Tx) RecordItem(ctx context.Context, record Record) error {
	if strings.TrimSpace(record.LocalID) == "" {
		return errors.New("record item: local id is required")
	}
	tags := record.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	recordedAt := record.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err = t.tx.ExecContext(
		ctx,
		`INSERT INTO items (local_id, remote_id, title, owner_id, url, tags, recorded_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.LocalID,
		record.RemoteID,
		record.Title,
		record.OwnerID,
		nullableString(record.URL),
		string(tagsJSON),
		recordedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return services.Wrap(ErrDuplicateKey, "ledger", "record item", fmt.Sprintf("local id %q already recorded", record.LocalID), err)
		}
		return fmt.Errorf("record item: %w", err)
	}
	return nil
}

// Commit makes the transaction durable and visible.
func (t *Tx) Commit() error {
	defer t.done()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// Rollback discards the transaction. Calling it after Commit is a no-op.
func (t *Tx) Rollback() error {
	defer t.done()
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback ledger tx: %w", err)
	}
	return nil
}

func (t *Tx) done() {
	t.once.Do(t.release)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
