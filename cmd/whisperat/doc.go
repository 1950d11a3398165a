// Command whisperat is the CLI for the transcription service: it uploads
// audio, checks health and status, lists jobs, runs the Redis worker, and
// manages configuration files.
package main
