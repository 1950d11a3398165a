package httpapi

import (
	"github.com/m-aliabbas/whisper-at-server/internal/config"
	"github.com/m-aliabbas/whisper-at-server/internal/engine"
	"github.com/m-aliabbas/whisper-at-server/internal/textfilter"
)

// SegmentPayload is one transcript segment on the wire.
type SegmentPayload struct {
	ID           int     `json:"id"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// TagPayload is one audio tag on the wire.
type TagPayload struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// TranscribeResponse is the body returned by the transcription endpoint.
// Segments and AudioTags marshal as empty arrays rather than null so clients
// can index them unconditionally.
type TranscribeResponse struct {
	JobID     string           `json:"job_id"`
	Text      string           `json:"text"`
	Segments  []SegmentPayload `json:"segments"`
	AudioTags []TagPayload     `json:"audio_tags"`
}

// dialToneText marks telephony signaling detected by the postprocess stage.
const dialToneText = "DIAL TONE"

// buildResponse maps an engine result onto the wire format, applying the
// configured cleanup stages. Postprocessing runs first so segment filtering
// and dial-tone detection see the raw model output; the hallucination filter
// then cleans whatever text survived.
func buildResponse(jobID string, result engine.Result, pp config.Postprocess) TranscribeResponse {
	out := result
	if pp.Enabled {
		out = textfilter.PostProcess(out)
	}
	if pp.HallucinationFilter && out.Text != dialToneText {
		out.Text = textfilter.CleanShortTranscript(textfilter.RemoveHallucinations(out.Text))
	}

	segments := make([]SegmentPayload, 0, len(out.Segments))
	for _, segment := range out.Segments {
		segments = append(segments, SegmentPayload{
			ID:           segment.ID,
			Start:        segment.Start,
			End:          segment.End,
			Text:         segment.Text,
			NoSpeechProb: segment.NoSpeechProb,
		})
	}
	tags := make([]TagPayload, 0, len(out.AudioTags))
	for _, tag := range out.AudioTags {
		tags = append(tags, TagPayload{
			Start:      tag.Start,
			End:        tag.End,
			Label:      tag.Label,
			Confidence: tag.Confidence,
		})
	}

	return TranscribeResponse{
		JobID:     jobID,
		Text:      out.Text,
		Segments:  segments,
		AudioTags: tags,
	}
}
