// Package client is the HTTP client used by the CLI and the Redis worker to
// talk to a running transcription service.
package client
