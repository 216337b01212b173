// Package ledger persists which local items have been pushed to the remote API.
//
// The ledger is a SQLite database holding one row per recorded item and one
// row per owning party. A row's existence is the only signal that an item is
// synced, so writes go through Tx: owner upsert, item insert, and commit form
// one unit, and nothing becomes visible to SyncedIdentifiers before Commit
// returns. Writers are serialized in process by a mutex held for the life of a
// Tx, across processes by SQLite locking, and across runs by AcquireRunLock.
//
// Schema changes ship as embedded, forward-only migrations applied on Open.
package ledger
