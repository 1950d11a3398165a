// Package worker bridges a Redis job queue to the transcription service.
// Producers push job ids onto a pending list alongside raw audio keys; the
// worker uploads each audio blob over HTTP and stores the transcript back in
// Redis with a TTL.
package worker
