package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/m-aliabbas/whisper-at-server/internal/dispatch"
	"github.com/m-aliabbas/whisper-at-server/internal/engine"
	"github.com/m-aliabbas/whisper-at-server/internal/logging"
	"github.com/m-aliabbas/whisper-at-server/internal/services"
)

// Upload extensions accepted at the front door. The normalizer probes the
// actual container; this list only rejects obviously wrong uploads early.
var allowedUploadExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".m4a":  {},
	".flac": {},
	".ogg":  {},
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.state.Ready() {
		w.Header().Set("Retry-After", "5")
		s.writeError(w, http.StatusServiceUnavailable, "model is loading, try again shortly")
		return
	}

	maxBytes := int64(s.cfg.Server.MaxUploadMiB) << 20
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d MiB limit", s.cfg.Server.MaxUploadMiB))
			return
		}
		s.writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedUploadExtensions[ext]; !ok {
		s.writeError(w, http.StatusBadRequest,
			"unsupported file format, supported: .mp3, .wav, .m4a, .flac, .ogg")
		return
	}

	params, err := parseParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID := uuid.NewString()
	ctx := services.WithJobID(r.Context(), jobID)
	logger := s.logger.With(logging.FieldJobID, jobID)
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		logger = logger.With(logging.FieldRequestID, requestID)
	}

	spoolPath := filepath.Join(s.cfg.Paths.SpoolDir, jobID+ext)
	if err := spoolUpload(spoolPath, file); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d MiB limit", s.cfg.Server.MaxUploadMiB))
			return
		}
		logger.Error("failed to spool upload", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer func() {
		if err := os.Remove(spoolPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove spooled upload", logging.Error(err))
		}
	}()

	normalized, err := s.normalizer.Normalize(ctx, spoolPath)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !normalized.PassThrough {
		defer func() {
			if err := os.Remove(normalized.Path); err != nil && !os.IsNotExist(err) {
				logger.Warn("failed to remove normalized audio", logging.Error(err))
			}
		}()
	}

	pending, err := s.dispatcher.Submit(dispatch.Job{
		ID:              jobID,
		AudioPath:       normalized.Path,
		SourceName:      header.Filename,
		DurationSeconds: normalized.DurationSeconds,
		SampleRate:      normalized.SampleRate,
		PassThrough:     normalized.PassThrough,
		Params:          params,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.dispatcher.Await(ctx, pending)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, buildResponse(jobID, result, s.cfg.Postprocess))
}

// writeServiceError maps classified errors onto HTTP statuses. When the
// client has already gone away nothing is written.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, services.ErrCanceled) && r.Context().Err() != nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrUnsupportedFormat),
		errors.Is(err, services.ErrDecode):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrQueueFull):
		w.Header().Set("Retry-After", "1")
		s.writeError(w, http.StatusServiceUnavailable, "transcription queue is full, try again shortly")
	case errors.Is(err, services.ErrUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, "service is shutting down")
	case errors.Is(err, services.ErrTimeout):
		s.writeError(w, http.StatusGatewayTimeout, "transcription timed out")
	default:
		s.logger.Error("transcription failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "error during transcription")
	}
}

func parseParams(r *http.Request) (engine.Params, error) {
	params := engine.DefaultParams()

	if raw := strings.TrimSpace(r.FormValue("audio_tagging_time_resolution")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return params, fmt.Errorf("audio_tagging_time_resolution must be an integer")
		}
		params.AudioTaggingTimeResolution = value
	}
	if raw := strings.TrimSpace(r.FormValue("temperature")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return params, fmt.Errorf("temperature must be a number")
		}
		params.Temperature = value
	}
	if raw := strings.TrimSpace(r.FormValue("no_speech_threshold")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return params, fmt.Errorf("no_speech_threshold must be a number")
		}
		params.NoSpeechThreshold = value
	}

	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}

func spoolUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return err
	}
	return dst.Close()
}
