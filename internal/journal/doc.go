// Package journal records job lifecycle metadata in SQLite for the status
// and jobs endpoints. Only metadata is stored: identifiers, states, timings,
// and request parameters. Audio content and transcripts stay out of the
// database.
package journal
