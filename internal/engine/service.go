package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/m-aliabbas/whisper-at-server/internal/logging"
	"github.com/m-aliabbas/whisper-at-server/internal/readiness"
	"github.com/m-aliabbas/whisper-at-server/internal/services"
)

// Service wraps the whisper-at CLI. One Service represents one loaded model
// instance; it is not safe for concurrent Transcribe calls. The dispatcher is
// the only component that may hold the exclusivity required to call it.
type Service struct {
	cfg    Config
	state  *readiness.State
	logger *slog.Logger

	commandOutput func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewService creates an engine service with the given configuration. The
// readiness state is marked ready after a successful Load.
func NewService(cfg Config, state *readiness.State, logger *slog.Logger) *Service {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Service{
		cfg:    cfg,
		state:  state,
		logger: logging.NewComponentLogger(logger, "engine"),
	}
}

// WithCommandOutput sets a custom command runner (for testing).
func (s *Service) WithCommandOutput(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	s.commandOutput = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	return s.cfg.Model
}

// Load performs the model warm-up invocation and marks the service ready.
// Loading a large model onto the GPU can take minutes; callers run this in
// the background and rely on the readiness state.
func (s *Service) Load(ctx context.Context) error {
	if s.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LoadTimeout)
		defer cancel()
	}

	started := time.Now()
	s.logger.Info("loading model", logging.String("model", s.cfg.Model))

	args := []string{"--model", s.cfg.Model, "--device", s.device(), "--warmup"}
	if _, err := s.run(ctx, args...); err != nil {
		return services.Wrap(services.ErrInference, "engine", "load", "model warm-up failed", err)
	}

	if s.state != nil {
		s.state.MarkReady()
	}
	s.logger.Info("model loaded",
		logging.String("model", s.cfg.Model),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// Transcribe runs inference on a normalized 16 kHz mono WAV file.
//
// Failures are propagated, never retried here: inference is expensive and the
// retry decision belongs to the caller. Output is not deterministic when the
// temperature is above zero.
func (s *Service) Transcribe(ctx context.Context, wavPath string, params Params) (Result, error) {
	if strings.TrimSpace(wavPath) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "engine", "transcribe", "source path required", nil)
	}
	if s.cfg.TranscribeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TranscribeTimeout)
		defer cancel()
	}

	output, err := s.run(ctx, s.buildArgs(wavPath, params)...)
	if err != nil {
		return Result{}, services.Wrap(services.ErrInference, "engine", "transcribe", "inference failed", err)
	}

	result, err := parseResult(output)
	if err != nil {
		return Result{}, services.Wrap(services.ErrInference, "engine", "transcribe", "unreadable engine output", err)
	}

	return gateNoSpeech(result, params.NoSpeechThreshold), nil
}

// gateNoSpeech blanks the transcript when the leading segment's no-speech
// probability reaches the request threshold.
func gateNoSpeech(result Result, threshold float64) Result {
	if len(result.Segments) == 0 {
		return result
	}
	if result.Segments[0].NoSpeechProb >= threshold {
		result.Text = ""
	}
	return result
}

func (s *Service) buildArgs(wavPath string, params Params) []string {
	return []string{
		"--model", s.cfg.Model,
		"--device", s.device(),
		"--at-time-res", strconv.Itoa(params.AudioTaggingTimeResolution),
		"--temperature", strconv.FormatFloat(params.Temperature, 'g', -1, 64),
		"--no-speech-threshold", strconv.FormatFloat(params.NoSpeechThreshold, 'g', -1, 64),
		"--output-format", OutputFormat,
		wavPath,
	}
}

func (s *Service) device() string {
	if s.cfg.CUDAEnabled {
		return CUDADevice
	}
	return CPUDevice
}

func (s *Service) run(ctx context.Context, args ...string) ([]byte, error) {
	if s.commandOutput != nil {
		return s.commandOutput(ctx, s.cfg.Binary, args...)
	}
	cmd := exec.CommandContext(ctx, s.cfg.Binary, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		detail := ""
		if exitErr, ok := err.(*exec.ExitError); ok {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("%s: %w: %s", s.cfg.Binary, err, detail)
	}
	return output, nil
}
