// Package config loads, normalizes, and validates imagepush configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// IMAGEPUSH_API_KEY. Positional command values are merged through
// ApplyRunArgs so the CLI and the config file feed one Config value.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical policies, and clear validation errors.
package config
