package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the HTTP front door configuration.
type Server struct {
	Bind            string `toml:"bind"`
	APIToken        string `toml:"api_token"`
	MaxUploadMiB    int    `toml:"max_upload_mib"`
	ShutdownTimeout int    `toml:"shutdown_timeout"`
}

// Paths contains directory configuration.
type Paths struct {
	LogDir   string `toml:"log_dir"`
	SpoolDir string `toml:"spool_dir"`
}

// Engine contains configuration for the whisper-at inference engine.
type Engine struct {
	Binary            string `toml:"binary"`
	Model             string `toml:"model"`
	Instances         int    `toml:"instances"`
	CUDAEnabled       bool   `toml:"cuda_enabled"`
	LoadTimeout       int    `toml:"load_timeout"`
	TranscribeTimeout int    `toml:"transcribe_timeout"`
}

// Queue contains configuration for the in-process job dispatcher.
type Queue struct {
	Capacity     int `toml:"capacity"`
	AwaitTimeout int `toml:"await_timeout"`
}

// Journal contains configuration for the job lifecycle journal.
type Journal struct {
	RetentionDays int `toml:"retention_days"`
}

// Worker contains configuration for the Redis queue consumer.
type Worker struct {
	RedisAddr      string `toml:"redis_addr"`
	RedisPassword  string `toml:"redis_password"`
	PendingList    string `toml:"pending_list"`
	ProcessingList string `toml:"processing_list"`
	ResultTTL      int    `toml:"result_ttl"`
	PollTimeout    int    `toml:"poll_timeout"`
	ServiceURL     string `toml:"service_url"`
}

// Postprocess contains configuration for transcript post-processing.
type Postprocess struct {
	Enabled             bool `toml:"enabled"`
	HallucinationFilter bool `toml:"hallucination_filter"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the transcription service.
//
// Configuration sections by subsystem:
//   - Server: bind address, auth token, upload limits
//   - Paths: log and upload spool directories
//   - Engine: whisper-at binary, model, instance count, timeouts
//   - Queue: dispatcher capacity and await timeout
//   - Journal: job journal retention
//   - Worker: Redis queue consumer settings
//   - Postprocess: transcript filtering toggles
//   - Logging: log format and level
type Config struct {
	Server      Server      `toml:"server"`
	Paths       Paths       `toml:"paths"`
	Engine      Engine      `toml:"engine"`
	Queue       Queue       `toml:"queue"`
	Journal     Journal     `toml:"journal"`
	Worker      Worker      `toml:"worker"`
	Postprocess Postprocess `toml:"postprocess"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/whisper-at-server/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized, and deployment environment
// overrides (WHISPER_AT_BIND, WHISPER_AT_INSTANCES) applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("whisper-at-server.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.SpoolDir, err = expandPath(c.Paths.SpoolDir); err != nil {
		return err
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	c.Engine.Model = strings.TrimSpace(c.Engine.Model)

	// Listen address and instance count are deployment configuration; the
	// environment wins over the file in containerized deployments.
	if bind := strings.TrimSpace(os.Getenv("WHISPER_AT_BIND")); bind != "" {
		c.Server.Bind = bind
	}
	if raw := strings.TrimSpace(os.Getenv("WHISPER_AT_INSTANCES")); raw != "" {
		parsed, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return fmt.Errorf("parse WHISPER_AT_INSTANCES %q: %w", raw, convErr)
		}
		c.Engine.Instances = parsed
	}
	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		c.Worker.RedisAddr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Worker.RedisPassword = password
	}

	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.SpoolDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFprobeBinary returns the ffprobe executable name used for audio inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// FFmpegBinary returns the ffmpeg executable name used for resampling.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
