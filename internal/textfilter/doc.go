// Package textfilter cleans raw model output before it reaches clients. It
// removes known hallucinated phrases, collapses trivial short utterances, and
// rewrites transcripts dominated by telephony signaling to a dial-tone marker.
package textfilter
