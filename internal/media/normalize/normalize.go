package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/m-aliabbas/whisper-at-server/internal/logging"
	"github.com/m-aliabbas/whisper-at-server/internal/media/ffprobe"
	"github.com/m-aliabbas/whisper-at-server/internal/services"
)

// Target format required by the inference engine.
const (
	TargetSampleRate = 16000
	TargetChannels   = 1
)

// Container format names (as reported by ffprobe) accepted for upload.
var allowedFormats = map[string]struct{}{
	"mp3":  {},
	"wav":  {},
	"flac": {},
	"ogg":  {},
	"mov":  {},
	"mp4":  {},
	"m4a":  {},
	"3gp":  {},
}

// Result describes the outcome of a normalization pass.
type Result struct {
	// Path is the audio file to feed the engine. Equal to the source path
	// when the input already matched the target format.
	Path            string
	SampleRate      int
	Channels        int
	DurationSeconds float64
	PassThrough     bool
}

// Normalizer inspects uploaded audio and resamples it to the engine's target
// format when needed. Inputs already at 16 kHz mono pass through untouched.
type Normalizer struct {
	ffprobeBinary string
	ffmpegBinary  string
	logger        *slog.Logger

	prober        func(ctx context.Context, binary, path string) (ffprobe.Result, error)
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// New constructs a Normalizer using the configured binaries.
func New(ffprobeBinary, ffmpegBinary string, logger *slog.Logger) *Normalizer {
	if ffprobeBinary == "" {
		ffprobeBinary = "ffprobe"
	}
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Normalizer{
		ffprobeBinary: ffprobeBinary,
		ffmpegBinary:  ffmpegBinary,
		logger:        logging.NewComponentLogger(logger, "normalizer"),
		prober:        ffprobe.Inspect,
	}
}

// WithProber sets a custom probe function (for testing).
func (n *Normalizer) WithProber(prober func(ctx context.Context, binary, path string) (ffprobe.Result, error)) {
	n.prober = prober
}

// WithCommandRunner sets a custom command runner (for testing).
func (n *Normalizer) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	n.commandRunner = runner
}

// Normalize probes the source file and produces audio at the target sample
// rate and channel count. The source is never modified; resampled output is
// written next to it with a .norm.wav suffix.
func (n *Normalizer) Normalize(ctx context.Context, sourcePath string) (Result, error) {
	probe, err := n.prober(ctx, n.ffprobeBinary, sourcePath)
	if err != nil {
		return Result{}, services.Wrap(services.ErrDecode, "normalizer", "probe", "audio file is unreadable", err)
	}

	if !formatAllowed(probe.FormatNames()) {
		return Result{}, services.Wrap(services.ErrUnsupportedFormat, "normalizer", "probe",
			fmt.Sprintf("container %q is not a supported audio format", probe.Format.FormatName), nil)
	}

	stream, ok := probe.FirstAudioStream()
	if !ok {
		return Result{}, services.Wrap(services.ErrDecode, "normalizer", "probe", "file contains no audio stream", nil)
	}

	rate := stream.SampleRateHz()
	duration := probe.DurationSeconds()

	if rate == TargetSampleRate && stream.Channels == TargetChannels {
		n.logger.Debug("audio already at target format",
			logging.String("source", sourcePath),
			logging.Int("sample_rate", rate),
		)
		return Result{
			Path:            sourcePath,
			SampleRate:      rate,
			Channels:        stream.Channels,
			DurationSeconds: duration,
			PassThrough:     true,
		}, nil
	}

	dest := normalizedPath(sourcePath)
	n.logger.Info("resampling audio to target format",
		logging.String("source", sourcePath),
		logging.Int("sample_rate", rate),
		logging.Int("channels", stream.Channels),
	)
	if err := n.resample(ctx, sourcePath, dest); err != nil {
		if removeErr := os.Remove(dest); removeErr != nil && !os.IsNotExist(removeErr) {
			n.logger.Warn("failed to remove partial output",
				logging.String("path", dest),
				logging.Error(removeErr),
			)
		}
		return Result{}, services.Wrap(services.ErrDecode, "normalizer", "resample", "audio decode failed", err)
	}

	return Result{
		Path:            dest,
		SampleRate:      TargetSampleRate,
		Channels:        TargetChannels,
		DurationSeconds: duration,
		PassThrough:     false,
	}, nil
}

func (n *Normalizer) resample(ctx context.Context, source, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", fmt.Sprintf("%d", TargetChannels),
		"-ar", fmt.Sprintf("%d", TargetSampleRate),
		"-c:a", "pcm_s16le",
		dest,
	}
	if n.commandRunner != nil {
		return n.commandRunner(ctx, n.ffmpegBinary, args...)
	}
	cmd := exec.CommandContext(ctx, n.ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg resample: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func formatAllowed(names []string) bool {
	for _, name := range names {
		if _, ok := allowedFormats[name]; ok {
			return true
		}
	}
	return false
}

func normalizedPath(sourcePath string) string {
	base := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath))
	return base + ".norm.wav"
}
