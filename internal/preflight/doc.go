// Package preflight provides readiness checks for the filesystem paths and
// remote API imagepush depends on.
//
// The push command calls RunAll before touching the ledger so a missing or
// unreadable source directory fails fast with no side effects. The
// "config validate" command additionally calls CheckAPI.
package preflight
