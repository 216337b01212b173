// Package services defines shared utilities consumed by the sync engine and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp local item IDs, stage names, and run
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures as
//     item-scoped (metadata, publish) or run-fatal (duplicate key, ledger).
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across a sync run.
package services
