package engine

import (
	"time"

	"github.com/m-aliabbas/whisper-at-server/internal/config"
)

// Config captures runtime settings for the whisper-at engine.
type Config struct {
	// Binary is the whisper-at CLI executable.
	Binary string
	// Model is the model size to load (e.g. "base", "large").
	Model string
	// CUDAEnabled selects GPU inference.
	CUDAEnabled bool
	// LoadTimeout bounds the model warm-up invocation.
	LoadTimeout time.Duration
	// TranscribeTimeout bounds a single inference invocation.
	TranscribeTimeout time.Duration
}

// ConfigFromApp builds an engine Config from application configuration.
func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		Binary:            cfg.Engine.Binary,
		Model:             cfg.Engine.Model,
		CUDAEnabled:       cfg.Engine.CUDAEnabled,
		LoadTimeout:       time.Duration(cfg.Engine.LoadTimeout) * time.Second,
		TranscribeTimeout: time.Duration(cfg.Engine.TranscribeTimeout) * time.Second,
	}
}

// Engine CLI constants.
const (
	DefaultModel  = "base"
	CPUDevice     = "cpu"
	CUDADevice    = "cuda"
	OutputFormat  = "json"
	DefaultBinary = "whisper-at"
)
