// Package config loads, normalizes, and validates whisper-at-server
// configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// WHISPER_AT_BIND and WHISPER_AT_INSTANCES. The Config type centralizes every
// knob the daemon, worker, and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
