// Package syncengine pushes local items that the ledger has not yet recorded.
//
// A run lists the source directory, subtracts the identifiers already in the
// ledger, and reports how many remain. Each pending item then moves through
// Pending, MetadataLoaded, Published, and Recorded: its sidecar is loaded and
// checked, the image is published with prefixed tags, and one ledger
// transaction upserts the owner, records the item, and commits. An item is
// synced only once that commit returns.
//
// Metadata and publish failures either abort the run or skip the item,
// depending on Options.FailurePolicy. Duplicate keys and ledger failures
// always abort. A published item whose ledger commit fails is retried on the
// next run; the publisher's idempotency key lets the remote side collapse it.
package syncengine
