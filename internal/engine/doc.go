// Package engine wraps the whisper-at CLI behind a typed transcription
// contract.
//
// A Service is one loaded model instance. Model state is not safe for
// parallel use, so a Service must only be invoked under the dispatcher's
// exclusivity guarantee. Load performs the warm-up invocation and flips the
// shared readiness state; Transcribe runs a single inference and returns the
// structured result (text, timed segments, audio-event tags).
package engine
