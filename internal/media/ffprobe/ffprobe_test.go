package ffprobe

import (
	"reflect"
	"testing"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video"},
			{CodecType: "audio", SampleRate: "44100", Channels: 2},
			{CodecType: "audio", SampleRate: "16000", Channels: 1},
		},
		Format: Format{
			Duration:   "123.45",
			FormatName: "mov,mp4,m4a",
		},
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	stream, ok := result.FirstAudioStream()
	if !ok {
		t.Fatal("expected an audio stream")
	}
	if stream.SampleRateHz() != 44100 {
		t.Fatalf("unexpected sample rate: %d", stream.SampleRateHz())
	}
	if stream.Channels != 2 {
		t.Fatalf("unexpected channels: %d", stream.Channels)
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	want := []string{"mov", "mp4", "m4a"}
	if !reflect.DeepEqual(result.FormatNames(), want) {
		t.Fatalf("unexpected format names: %v", result.FormatNames())
	}
}

func TestResultHelpersHandleInvalidValues(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", SampleRate: "bad"}},
		Format:  Format{Duration: "bad", FormatName: ""},
	}
	stream, ok := result.FirstAudioStream()
	if !ok {
		t.Fatal("expected audio stream")
	}
	if stream.SampleRateHz() != 0 {
		t.Fatalf("expected sample rate 0, got %d", stream.SampleRateHz())
	}
	if result.DurationSeconds() != 0 {
		t.Fatalf("expected duration 0, got %v", result.DurationSeconds())
	}
	if len(result.FormatNames()) != 0 {
		t.Fatalf("expected no format names, got %v", result.FormatNames())
	}
}

func TestNoAudioStream(t *testing.T) {
	result := Result{Streams: []Stream{{CodecType: "video"}}}
	if _, ok := result.FirstAudioStream(); ok {
		t.Fatal("expected no audio stream")
	}
}
