package textfilter

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Known hallucinated phrases emitted on silent or near-silent audio,
// compared against the normalized lowercase form.
var hallucinatedPhrases = map[string]struct{}{
	"thank you":              {},
	"thanks for watching":    {},
	"thank you for watching": {},
	"so":                     {},
	"the":                    {},
	"you":                    {},
	"oh":                     {},
}

var (
	nonASCIIKeep  = regexp.MustCompile(`[^a-zA-Z0-9.,'\s]`)
	collapseSpace = regexp.MustCompile(`\s+`)
	dotsOnly      = regexp.MustCompile(`^[.]+$`)
	dotRun        = regexp.MustCompile(`\.{3,}`)
)

var asciiFold = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
)

// Normalize folds text to plain lowercase ASCII with collapsed whitespace,
// keeping only letters, digits, basic punctuation, and apostrophes.
func Normalize(text string) string {
	folded, _, err := transform.String(asciiFold, text)
	if err != nil {
		folded = text
	}
	folded = nonASCIIKeep.ReplaceAllString(folded, "")
	folded = collapseSpace.ReplaceAllString(folded, " ")
	return strings.ToLower(strings.TrimSpace(folded))
}

// RemoveHallucinations drops transcripts that are known model hallucinations:
// dot-only output, long dot runs, or an exact match against the phrase list.
// Legitimate text passes through unchanged.
func RemoveHallucinations(text string) string {
	normalized := Normalize(text)
	if normalized == "" {
		return ""
	}
	if dotsOnly.MatchString(normalized) || dotRun.MatchString(normalized) {
		return ""
	}
	if _, ok := hallucinatedPhrases[normalized]; ok {
		return ""
	}
	return text
}

// CleanShortTranscript applies the short-utterance rules used on telephony
// audio: farewell fragments and trivial fillers collapse to the empty string.
// The returned text is lowercased and trimmed.
func CleanShortTranscript(text string) string {
	cleaned := strings.TrimSpace(strings.ToLower(text))
	if strings.Contains(cleaned, "bye bye") {
		return ""
	}
	if len(cleaned) <= 10 {
		if cleaned == "you" {
			return ""
		}
		if strings.Contains(cleaned, "the") {
			return ""
		}
	}
	return cleaned
}
