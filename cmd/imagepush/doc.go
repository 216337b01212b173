// Package main hosts the imagepush CLI entrypoint and command graph.
//
// The root command takes five positional values (API root, API key, ledger
// path, source directory, tag prefix) and runs one sync pass: every item in
// the directory that the ledger has not recorded is published and then
// recorded. Any other argument count prints usage and does nothing.
//
// The ledger and config subcommands inspect a ledger file and scaffold or
// check the configuration. They never publish anything.
package main
