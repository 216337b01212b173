// Package logging assembles structured slog loggers and formatting helpers used
// across imagepush.
//
// It owns the console and JSON handlers, routes console output to stderr so
// run reports on stdout stay machine readable, and optionally tees a debug
// level JSON stream into a rotating file. Context helpers tag log lines with
// the item identifier, stage, and run identifier carried on a context.
package logging
