package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gwlsn/tsshrink/internal/ffmpeg"
)

// Modes select both the encoder arguments and the verification policy.
const (
	// ModeTranscode re-encodes video to HEVC and verifies with banded duration tolerance.
	ModeTranscode = "transcode"
	// ModeRemux stream-copies video and verifies with a fixed seconds tolerance.
	ModeRemux = "remux"
)

type Config struct {
	// FFmpegPath is the path to ffmpeg binary (default: "ffmpeg")
	FFmpegPath string `yaml:"ffmpeg_path" toml:"ffmpeg_path"`

	// FFprobePath is the path to ffprobe binary (default: "ffprobe")
	FFprobePath string `yaml:"ffprobe_path" toml:"ffprobe_path"`

	// Mode is "transcode" (default) or "remux"
	Mode string `yaml:"mode" toml:"mode"`

	// CRF is the x265 quality factor (0-51, lower = higher quality, default 28)
	CRF int `yaml:"crf" toml:"crf"`

	// Preset is the x265 speed preset name (default "medium")
	Preset string `yaml:"preset" toml:"preset"`

	// VideoEncoder is the ffmpeg video encoder used in transcode mode
	VideoEncoder string `yaml:"video_encoder" toml:"video_encoder"`

	// VideoTag is the codec tag written for the video stream ("hvc1" for Apple players)
	VideoTag string `yaml:"video_tag" toml:"video_tag"`

	// OutputExtension replaces the source extension to form the output path
	OutputExtension string `yaml:"output_extension" toml:"output_extension"`

	// SourceExtensions lists the extensions considered candidates (default [".ts"])
	SourceExtensions []string `yaml:"source_extensions" toml:"source_extensions"`

	// AllowVideoOnly lets sources without an audio stream through the precondition check
	AllowVideoOnly bool `yaml:"allow_video_only" toml:"allow_video_only"`

	// ToleranceSeconds is the fixed duration tolerance used by the remux policy
	ToleranceSeconds float64 `yaml:"tolerance_seconds" toml:"tolerance_seconds"`

	// ProbeTimeoutSeconds bounds a full ffprobe call (default 30)
	ProbeTimeoutSeconds int `yaml:"probe_timeout_seconds" toml:"probe_timeout_seconds"`

	// ValidityTimeoutSeconds bounds the format-only validity check (default 10)
	ValidityTimeoutSeconds int `yaml:"validity_timeout_seconds" toml:"validity_timeout_seconds"`

	// KillGraceSeconds is how long the encoder gets after SIGTERM before SIGKILL (default 5)
	KillGraceSeconds int `yaml:"kill_grace_seconds" toml:"kill_grace_seconds"`

	// HistoryPath is the SQLite run ledger; empty disables history
	HistoryPath string `yaml:"history_path" toml:"history_path"`

	// MetricsTextfile is a node_exporter textfile target; empty disables export
	MetricsTextfile string `yaml:"metrics_textfile" toml:"metrics_textfile"`

	// LockDirectory takes an exclusive lock on the scanned directory for the run
	LockDirectory bool `yaml:"lock_directory" toml:"lock_directory"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level" toml:"log_level"`

	// LogFormat is "text" or "json"
	LogFormat string `yaml:"log_format" toml:"log_format"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		FFmpegPath:             "ffmpeg",
		FFprobePath:            "ffprobe",
		Mode:                   ModeTranscode,
		CRF:                    28,
		Preset:                 "medium",
		VideoEncoder:           "libx265",
		VideoTag:               "hvc1",
		OutputExtension:        ".mp4",
		SourceExtensions:       []string{".ts"},
		ToleranceSeconds:       2.0,
		ProbeTimeoutSeconds:    30,
		ValidityTimeoutSeconds: 10,
		KillGraceSeconds:       5,
		LockDirectory:          true,
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// Load reads config from a YAML or TOML file (by extension), applying
// defaults for missing values. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults
			return cfg, nil
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero values left by a partial config file
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.FFmpegPath == "" {
		c.FFmpegPath = def.FFmpegPath
	}
	if c.FFprobePath == "" {
		c.FFprobePath = def.FFprobePath
	}
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.Preset == "" {
		c.Preset = def.Preset
	}
	if c.VideoEncoder == "" {
		c.VideoEncoder = def.VideoEncoder
	}
	if c.OutputExtension == "" {
		c.OutputExtension = def.OutputExtension
	}
	if !strings.HasPrefix(c.OutputExtension, ".") {
		c.OutputExtension = "." + c.OutputExtension
	}
	if len(c.SourceExtensions) == 0 {
		c.SourceExtensions = def.SourceExtensions
	}
	if c.ProbeTimeoutSeconds <= 0 {
		c.ProbeTimeoutSeconds = def.ProbeTimeoutSeconds
	}
	if c.ValidityTimeoutSeconds <= 0 {
		c.ValidityTimeoutSeconds = def.ValidityTimeoutSeconds
	}
	if c.KillGraceSeconds <= 0 {
		c.KillGraceSeconds = def.KillGraceSeconds
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
}

// Validate checks ranges and enumerations the pipeline depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.CRF < ffmpeg.MinCRF || c.CRF > ffmpeg.MaxCRF {
		errs = append(errs, fmt.Errorf("crf must be between %d and %d, got %d", ffmpeg.MinCRF, ffmpeg.MaxCRF, c.CRF))
	}
	if !ffmpeg.IsValidPreset(c.Preset) {
		errs = append(errs, fmt.Errorf("unknown preset %q (valid: %s)", c.Preset, strings.Join(ffmpeg.SpeedPresets, ", ")))
	}
	if c.Mode != ModeTranscode && c.Mode != ModeRemux {
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeTranscode, ModeRemux, c.Mode))
	}
	if c.ToleranceSeconds < 0 {
		errs = append(errs, fmt.Errorf("tolerance must not be negative, got %g", c.ToleranceSeconds))
	}
	for _, ext := range c.SourceExtensions {
		if strings.EqualFold(ext, c.OutputExtension) {
			errs = append(errs, fmt.Errorf("output_extension %q is also a source extension", c.OutputExtension))
		}
	}
	return errors.Join(errs...)
}

// ProbeTimeout returns the full probe bound as a duration
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// ValidityTimeout returns the validity-check bound as a duration
func (c *Config) ValidityTimeout() time.Duration {
	return time.Duration(c.ValidityTimeoutSeconds) * time.Second
}

// KillGrace returns the SIGTERM-to-SIGKILL grace period
func (c *Config) KillGrace() time.Duration {
	return time.Duration(c.KillGraceSeconds) * time.Second
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// EncodeSettings returns the encoder arguments for the configured mode
func (c *Config) EncodeSettings() ffmpeg.EncodeSettings {
	if c.Mode == ModeRemux {
		return ffmpeg.EncodeSettings{Copy: true}
	}
	return ffmpeg.EncodeSettings{
		Encoder: c.VideoEncoder,
		CRF:     c.CRF,
		Preset:  c.Preset,
		Tag:     c.VideoTag,
	}
}
