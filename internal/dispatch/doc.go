// Package dispatch serializes transcription jobs onto a fixed set of model
// instances. Jobs enter a bounded FIFO and are handed to instances one at a
// time; each instance runs at most one inference. Submission never blocks,
// and a full queue is reported immediately so the caller can shed load.
package dispatch
