package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db      *sql.DB
	path    string
	writeMu sync.Mutex
}

// Open initializes or connects to the ledger database and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("open ledger: path not set")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure ledger directory: %w", err)
		}
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite db: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// SyncedIdentifiers returns every recorded local identifier from one read.
func (s *Store) SyncedIdentifiers(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT local_id FROM items")
	if err != nil {
		return nil, fmt.Errorf("query synced identifiers: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan synced identifier: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate synced identifiers: %w", err)
	}
	return ids, nil
}

// Begin starts a write transaction. The store's write lock is held until the
// returned Tx is committed or rolled back.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	s.writeMu.Lock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("begin ledger tx: %w", err)
	}
	return &Tx{tx: tx, release: s.writeMu.Unlock}, nil
}

// Get returns the entry for localID, or nil when it has not been recorded.
func (s *Store) Get(ctx context.Context, localID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM items i JOIN owners o ON o.id = i.owner_id WHERE i.local_id = ?`, localID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// List returns recorded entries, most recent first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM items i JOIN owners o ON o.id = i.owner_id
        ORDER BY COALESCE(i.recorded_at, '') DESC, i.local_id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Stats summarizes the ledger.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		stats   Stats
		lastRaw sql.NullString
		version sql.NullString
	)
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1), MAX(recorded_at) FROM items").Scan(&stats.Records, &lastRaw); err != nil {
		return Stats{}, fmt.Errorf("count items: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM owners").Scan(&stats.Owners); err != nil {
		return Stats{}, fmt.Errorf("count owners: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return Stats{}, fmt.Errorf("read schema version: %w", err)
	}
	stats.LastRecordedAt = parseTime(lastRaw)
	stats.SchemaVersion = version.String
	return stats, nil
}

// timestampLayout is fixed-width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func parseTime(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return time.Time{}
	}
	return ts
}
