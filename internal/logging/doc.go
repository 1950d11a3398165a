// Package logging builds the slog loggers used across the daemon, worker, and
// CLI, and supplies the attribute helpers that keep field names consistent.
//
// Loggers write to stdout and, when a log directory is configured, to
// whisper-at-server.log inside it. Use NewComponentLogger to stamp a component
// name on every record a subsystem emits.
package logging
