package engine

import (
	"fmt"

	"github.com/m-aliabbas/whisper-at-server/internal/services"
)

// Parameter defaults applied when a request omits a field.
const (
	DefaultAudioTaggingTimeResolution = 10
	DefaultTemperature                = 0.01
	DefaultNoSpeechThreshold          = 0.4
)

// Params are the per-request transcription settings.
type Params struct {
	// AudioTaggingTimeResolution is the audio-event tagging window in seconds.
	AudioTaggingTimeResolution int
	// Temperature controls sampling; 0 is greedy decoding.
	Temperature float64
	// NoSpeechThreshold gates transcript text on the leading segment's
	// no-speech probability.
	NoSpeechThreshold float64
}

// DefaultParams returns the documented parameter defaults.
func DefaultParams() Params {
	return Params{
		AudioTaggingTimeResolution: DefaultAudioTaggingTimeResolution,
		Temperature:                DefaultTemperature,
		NoSpeechThreshold:          DefaultNoSpeechThreshold,
	}
}

// Validate rejects out-of-range values. Values are never clamped; an
// out-of-range parameter is a request error.
func (p Params) Validate() error {
	if p.AudioTaggingTimeResolution < 1 {
		return services.Wrap(services.ErrValidation, "params", "audio_tagging_time_resolution",
			fmt.Sprintf("must be a positive number of seconds, got %d", p.AudioTaggingTimeResolution), nil)
	}
	if p.Temperature < 0 || p.Temperature > 1 {
		return services.Wrap(services.ErrValidation, "params", "temperature",
			fmt.Sprintf("must be within [0, 1], got %g", p.Temperature), nil)
	}
	if p.NoSpeechThreshold < 0 || p.NoSpeechThreshold > 1 {
		return services.Wrap(services.ErrValidation, "params", "no_speech_threshold",
			fmt.Sprintf("must be within [0, 1], got %g", p.NoSpeechThreshold), nil)
	}
	return nil
}
