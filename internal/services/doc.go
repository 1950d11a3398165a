// Package services defines shared utilities consumed by the transcription
// pipeline components.
//
// Key responsibilities:
//   - Context helpers that stamp job and request identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification consistent across the normalizer, engine, and dispatcher.
//
// The HTTP layer is the only place these classifications become status codes;
// everything below it works with the sentinel errors directly.
package services
