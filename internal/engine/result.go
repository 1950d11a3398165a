package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Segment is a timed span of transcribed speech.
type Segment struct {
	ID           int     `json:"id"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// AudioTag labels a non-speech audio event over a time range.
type AudioTag struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Result is a completed transcription with audio-event tags.
type Result struct {
	Text      string     `json:"text"`
	Segments  []Segment  `json:"segments"`
	AudioTags []AudioTag `json:"audio_tags"`
}

// JoinSegmentText concatenates segment texts in order, trimmed.
func JoinSegmentText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func parseResult(payload []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return Result{}, fmt.Errorf("parse engine output: %w", err)
	}
	return result, nil
}
