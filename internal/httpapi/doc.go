// Package httpapi implements the HTTP front door: the multipart transcription
// endpoint, readiness-aware health checks, and token-protected introspection
// routes backed by the job journal.
package httpapi
