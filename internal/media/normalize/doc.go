// Package normalize prepares uploaded audio for the inference engine.
//
// The engine requires single-channel audio at 16 kHz. Files already in that
// format pass through byte-identical; everything else is resampled and
// downmixed with ffmpeg. Unsupported containers and undecodable files are
// reported as typed input errors, never as empty audio.
package normalize
