package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-aliabbas/whisper-at-server/internal/config"
	"github.com/m-aliabbas/whisper-at-server/internal/dispatch"
	"github.com/m-aliabbas/whisper-at-server/internal/engine"
	"github.com/m-aliabbas/whisper-at-server/internal/journal"
	"github.com/m-aliabbas/whisper-at-server/internal/logging"
	"github.com/m-aliabbas/whisper-at-server/internal/media/normalize"
	"github.com/m-aliabbas/whisper-at-server/internal/readiness"
	"github.com/m-aliabbas/whisper-at-server/internal/services"
	"github.com/m-aliabbas/whisper-at-server/internal/testsupport"
)

type stubNormalizer struct {
	result normalize.Result
	err    error
	calls  int
}

func (s *stubNormalizer) Normalize(_ context.Context, sourcePath string) (normalize.Result, error) {
	s.calls++
	if s.err != nil {
		return normalize.Result{}, s.err
	}
	result := s.result
	if result.Path == "" {
		result.Path = sourcePath
		result.PassThrough = true
	}
	return result, nil
}

type stubDispatcher struct {
	result    engine.Result
	submitErr error
	awaitErr  error
	submitted []dispatch.Job
}

func (s *stubDispatcher) Submit(job dispatch.Job) (*dispatch.Pending, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	s.submitted = append(s.submitted, job)
	return nil, nil
}

func (s *stubDispatcher) Await(_ context.Context, _ *dispatch.Pending) (engine.Result, error) {
	if s.awaitErr != nil {
		return engine.Result{}, s.awaitErr
	}
	return s.result, nil
}

func (s *stubDispatcher) Snapshot() dispatch.Stats {
	return dispatch.Stats{Queued: len(s.submitted)}
}

type serverFixture struct {
	server     *Server
	cfg        *config.Config
	state      *readiness.State
	normalizer *stubNormalizer
	dispatcher *stubDispatcher
	store      *journal.Store
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *serverFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	state := readiness.NewState()
	normalizer := &stubNormalizer{}
	dispatcher := &stubDispatcher{result: engine.Result{Text: "hello world"}}
	store := testsupport.MustOpenJournal(t, cfg)
	server := NewServer(cfg, normalizer, dispatcher, state, store, logging.NewNop())
	return &serverFixture{
		server:     server,
		cfg:        cfg,
		state:      state,
		normalizer: normalizer,
		dispatcher: dispatcher,
		store:      store,
	}
}

func multipartBody(t *testing.T, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("fake audio bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("WriteField(%s): %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func postTranscribe(t *testing.T, fx *serverFixture, filename string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, filename, fields)
	req := httptest.NewRequest(http.MethodPost, "/transcribe/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestTranscribeHappyPath(t *testing.T) {
	fx := newFixture(t)
	fx.state.MarkReady()
	fx.dispatcher.result = engine.Result{
		Text: "hello world",
		Segments: []engine.Segment{
			{ID: 0, Start: 0, End: 2.5, Text: "hello world", NoSpeechProb: 0.1},
		},
	}

	rec := postTranscribe(t, fx, "call.wav", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp TranscribeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Text != "hello world" {
		t.Fatalf("text = %q", resp.Text)
	}
	if resp.Segments == nil || resp.AudioTags == nil {
		t.Fatal("segments and audio_tags must be arrays, not null")
	}
	if len(fx.dispatcher.submitted) != 1 {
		t.Fatalf("submitted = %d jobs", len(fx.dispatcher.submitted))
	}
	if fx.dispatcher.submitted[0].SourceName != "call.wav" {
		t.Fatalf("source name = %q", fx.dispatcher.submitted[0].SourceName)
	}
}

func TestTranscribeAppliesRequestParams(t *testing.T) {
	fx := newFixture(t)
	fx.state.MarkReady()

	rec := postTranscribe(t, fx, "call.mp3", map[string]string{
		"audio_tagging_time_resolution": "5",
		"temperature":                   "0.2",
		"no_speech_threshold":           "0.6",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	params := fx.dispatcher.submitted[0].Params
	if params.AudioTaggingTimeResolution != 5 || params.Temperature != 0.2 || params.NoSpeechThreshold != 0.6 {
		t.Fatalf("unexpected params: %+v", params)
	}
}

func TestTranscribeRejectsOutOfRangeParams(t *testing.T) {
	fx := newFixture(t)
	fx.state.MarkReady()

	cases := map[string]map[string]string{
		"non-numeric temperature": {"temperature": "warm"},
		"temperature too high":    {"temperature": "2.5"},
		"zero time resolution":    {"audio_tagging_time_resolution": "0"},
		"negative threshold":      {"no_speech_threshold": "-0.1"},
		"threshold above one":     {"no_speech_threshold": "1.5"},
		"fractional resolution":   {"audio_tagging_time_resolution": "2.5"},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postTranscribe(t, fx, "call.wav", fields)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTranscribeRejectsUnknownExtension(t *testing.T) {
	fx := newFixture(t)
	fx.state.MarkReady()

	rec := postTranscribe(t, fx, "notes.txt", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if fx.normalizer.calls != 0 {
		t.Fatal("normalizer should not run for rejected uploads")
	}
}

func TestTranscribeWhileLoading(t *testing.T) {
	fx := newFixture(t)

	rec := postTranscribe(t, fx, "call.wav", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestTranscribeQueueFull(t *testing.T) {
	fx := newFixture(t)
	fx.state.MarkReady()
	fx.dispatcher.submitErr = services.Wrap(services.ErrQueueFull, "dispatch", "submit", "queue at capacity", nil)

	rec := postTranscribe(t, fx, "call.wav", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q, want 1", rec.Header().Get("Retry-After"))
	}
}

func TestTranscribeErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"decode failure", services.Wrap(services.ErrDecode, "normalize", "probe", "bad container", nil), http.StatusBadRequest},
		{"unsupported format", services.Wrap(services.ErrUnsupportedFormat, "normalize", "probe", "unknown format", nil), http.StatusBadRequest},
		{"inference failure", services.Wrap(services.ErrInference, "engine", "transcribe", "model crashed", nil), http.StatusInternalServerError},
		{"await timeout", services.Wrap(services.ErrTimeout, "dispatch", "await", "too slow", nil), http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.state.MarkReady()
			fx.normalizer.err = nil
			fx.dispatcher.awaitErr = nil
			switch tc.name {
			case "decode failure", "unsupported format":
				fx.normalizer.err = tc.err
			default:
				fx.dispatcher.awaitErr = tc.err
			}
			rec := postTranscribe(t, fx, "call.wav", nil)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tc.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestTranscribeCleansSpool(t *testing.T) {
	fx := newFixture(t)
	fx.state.MarkReady()

	rec := postTranscribe(t, fx, "call.flac", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	entries, err := os.ReadDir(fx.cfg.Paths.SpoolDir)
	if err != nil {
		t.Fatalf("read spool dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("spool dir not cleaned: %d entries", len(entries))
	}
}

func TestTranscribeRemovesNormalizedFile(t *testing.T) {
	fx := newFixture(t)
	fx.state.MarkReady()
	normPath := filepath.Join(fx.cfg.Paths.SpoolDir, "converted.norm.wav")
	testsupport.WriteFile(t, normPath, 64)
	fx.normalizer.result = normalize.Result{
		Path:        normPath,
		SampleRate:  8000,
		Channels:    1,
		PassThrough: false,
	}

	rec := postTranscribe(t, fx, "call.ogg", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(normPath); !os.IsNotExist(err) {
		t.Fatal("normalized file was not removed")
	}
}

func TestHealthReflectsReadiness(t *testing.T) {
	fx := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status before ready = %d", rec.Code)
	}

	fx.state.MarkReady()
	rec = httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status after ready = %d", rec.Code)
	}
}

func TestRootBanner(t *testing.T) {
	fx := newFixture(t)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var banner map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &banner); err != nil {
		t.Fatalf("unmarshal banner: %v", err)
	}
	if banner["message"] == "" {
		t.Fatal("expected welcome message")
	}
}

func TestStatusRequiresToken(t *testing.T) {
	fx := newFixture(t, testsupport.WithAPIToken("secret"))
	fx.state.MarkReady()

	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token = %d", rec.Code)
	}

	var status StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if !status.Ready {
		t.Fatal("expected ready status")
	}
}

func TestJobsEndpoints(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if err := fx.store.RecordQueued(ctx, "job-9", "a.wav", engine.DefaultParams(), 3, 16000, true, time.Now()); err != nil {
		t.Fatalf("RecordQueued: %v", err)
	}

	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("jobs status = %d", rec.Code)
	}
	var listing struct {
		Jobs []journal.Entry `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("unmarshal jobs: %v", err)
	}
	if len(listing.Jobs) != 1 || listing.Jobs[0].ID != "job-9" {
		t.Fatalf("unexpected listing: %+v", listing)
	}

	rec = httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/job-9", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("job status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d", rec.Code)
	}
}

func TestRequestIDEchoedAndGenerated(t *testing.T) {
	fx := newFixture(t)
	handler := fx.server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("request id = %q, want req-42", got)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}
}
