package textfilter

import (
	"github.com/m-aliabbas/whisper-at-server/internal/engine"
)

// segmentNoSpeechCeiling drops segments the model considers near-certain
// non-speech before the transcript is rebuilt.
const segmentNoSpeechCeiling = 0.55

// Audio tag classes that indicate telephony signaling rather than speech.
var dialToneClasses = map[string]struct{}{
	"Telephone":               {},
	"Telephone bell ringing":  {},
	"Ringtone":                {},
	"Telephone dialing, DTMF": {},
	"Dial tone":               {},
	"Busy signal":             {},
	"Alarm clock":             {},
	"Siren":                   {},
	"Civil defense siren":     {},
	"Buzzer":                  {},
	"Tearing":                 {},
	"Beep, bleep":             {},
	"Ping":                    {},
	"Sine wave":               {},
	"Echo":                    {},
	"Sidetone":                {},
	"Sound effect":            {},
	"Cowbell":                 {},
	"Vibraphone":              {},
}

// PostProcess rebuilds the transcript from segments that carry plausible
// speech and overrides it with "DIAL TONE" when the audio tags show telephony
// signaling. Audio tags are preserved untouched.
func PostProcess(result engine.Result) engine.Result {
	filtered := make([]engine.Segment, 0, len(result.Segments))
	for _, segment := range result.Segments {
		if segment.NoSpeechProb <= segmentNoSpeechCeiling {
			filtered = append(filtered, segment)
		}
	}

	text := engine.JoinSegmentText(filtered)
	if containsDialTone(result.AudioTags) {
		text = "DIAL TONE"
	}

	return engine.Result{
		Text:      text,
		Segments:  filtered,
		AudioTags: result.AudioTags,
	}
}

func containsDialTone(tags []engine.AudioTag) bool {
	for _, tag := range tags {
		if _, ok := dialToneClasses[tag.Label]; ok {
			return true
		}
	}
	return false
}
