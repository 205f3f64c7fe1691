package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	HTTP        HTTPConfig        `yaml:"http"`
	Audio       AudioConfig       `yaml:"audio"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Stabilizer  StabilizerConfig  `yaml:"stabilizer"`
	Display     DisplayConfig     `yaml:"display"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains websocket server configuration
type ServerConfig struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	MaxSessions int    `yaml:"max_sessions"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains audio buffering parameters
type AudioConfig struct {
	SampleRate         int     `yaml:"sample_rate"`
	BufferHighWaterSec float64 `yaml:"buffer_high_water_sec"` // evict when buffered audio exceeds this
	BufferLowWaterSec  float64 `yaml:"buffer_low_water_sec"`  // retained duration after eviction
	SessionTimeout     int     `yaml:"session_timeout"`       // seconds of inactivity before cleanup
}

// TranscriberConfig contains recognition engine configuration
type TranscriberConfig struct {
	Backend                string  `yaml:"backend"`  // "http" or "native"
	Endpoint               string  `yaml:"endpoint"` // whisper-server URL for the http backend
	ModelPath              string  `yaml:"model_path"`
	Language               string  `yaml:"language"`
	Temperature            float32 `yaml:"temperature"`
	Timeout                int     `yaml:"timeout"` // seconds, per engine call
	MaxConcurrent          int     `yaml:"max_concurrent"`
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"` // 0 = retry forever
	FailureBackoffMs       int     `yaml:"failure_backoff_ms"`
}

// StabilizerConfig contains transcript stabilization tuning
type StabilizerConfig struct {
	RepeatThreshold  int     `yaml:"repeat_threshold"`   // promote after this many repeated provisionals
	PauseSentinelSec float64 `yaml:"pause_sentinel_sec"` // silence before a pause sentinel is recorded
	ShowStaleSec     float64 `yaml:"show_stale_sec"`     // keep showing last output during brief silence
	MaxWindowSec     float64 `yaml:"max_window_sec"`     // window-overflow guard ceiling
	OverflowKeepSec  float64 `yaml:"overflow_keep_sec"`  // audio kept when the overflow guard trips
	MinWindowSec     float64 `yaml:"min_window_sec"`     // skip cycles with shorter windows
}

// DisplayConfig contains output formatting configuration
type DisplayConfig struct {
	Width           int `yaml:"width"`
	ContextSegments int `yaml:"context_segments"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcriber.Validate(); err != nil {
		return fmt.Errorf("transcriber config: %w", err)
	}

	if err := c.Stabilizer.Validate(); err != nil {
		return fmt.Errorf("stabilizer config: %w", err)
	}

	if err := c.Display.Validate(); err != nil {
		return fmt.Errorf("display config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", s.MaxSessions)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz, got %d", a.SampleRate)
	}

	if a.BufferHighWaterSec <= 0 {
		return fmt.Errorf("buffer_high_water_sec must be positive, got %f", a.BufferHighWaterSec)
	}

	if a.BufferLowWaterSec <= 0 || a.BufferLowWaterSec >= a.BufferHighWaterSec {
		return fmt.Errorf("buffer_low_water_sec (%f) must be positive and below buffer_high_water_sec (%f)",
			a.BufferLowWaterSec, a.BufferHighWaterSec)
	}

	if a.SessionTimeout < 1 {
		return fmt.Errorf("session_timeout must be at least 1 second, got %d", a.SessionTimeout)
	}

	return nil
}

// Validate validates transcriber configuration
func (t *TranscriberConfig) Validate() error {
	switch t.Backend {
	case "http":
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the http backend")
		}
	case "native":
		if t.ModelPath == "" {
			return fmt.Errorf("model_path cannot be empty for the native backend")
		}
	default:
		return fmt.Errorf("backend must be 'http' or 'native', got '%s'", t.Backend)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if t.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("max_consecutive_failures cannot be negative, got %d", t.MaxConsecutiveFailures)
	}

	if t.FailureBackoffMs < 0 {
		return fmt.Errorf("failure_backoff_ms cannot be negative, got %d", t.FailureBackoffMs)
	}

	if t.Temperature < 0 || t.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", t.Temperature)
	}

	return nil
}

// Validate validates stabilizer configuration
func (s *StabilizerConfig) Validate() error {
	if s.RepeatThreshold < 1 {
		return fmt.Errorf("repeat_threshold must be at least 1, got %d", s.RepeatThreshold)
	}

	if s.PauseSentinelSec <= 0 {
		return fmt.Errorf("pause_sentinel_sec must be positive, got %f", s.PauseSentinelSec)
	}

	if s.ShowStaleSec <= 0 {
		return fmt.Errorf("show_stale_sec must be positive, got %f", s.ShowStaleSec)
	}

	if s.MaxWindowSec <= 0 {
		return fmt.Errorf("max_window_sec must be positive, got %f", s.MaxWindowSec)
	}

	if s.OverflowKeepSec <= 0 || s.OverflowKeepSec >= s.MaxWindowSec {
		return fmt.Errorf("overflow_keep_sec (%f) must be positive and below max_window_sec (%f)",
			s.OverflowKeepSec, s.MaxWindowSec)
	}

	if s.MinWindowSec <= 0 {
		return fmt.Errorf("min_window_sec must be positive, got %f", s.MinWindowSec)
	}

	return nil
}

// Validate validates display configuration
func (d *DisplayConfig) Validate() error {
	if d.Width < 10 {
		return fmt.Errorf("width must be at least 10 characters, got %d", d.Width)
	}

	if d.ContextSegments < 1 {
		return fmt.Errorf("context_segments must be at least 1, got %d", d.ContextSegments)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetSessionTimeoutDuration returns the session timeout as a time.Duration
func (a *AudioConfig) GetSessionTimeoutDuration() time.Duration {
	return time.Duration(a.SessionTimeout) * time.Second
}

// GetTimeoutDuration returns the engine call timeout as a time.Duration
func (t *TranscriberConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetFailureBackoff returns the post-failure backoff as a time.Duration
func (t *TranscriberConfig) GetFailureBackoff() time.Duration {
	return time.Duration(t.FailureBackoffMs) * time.Millisecond
}

// GetPauseSentinelDuration returns the pause sentinel delay as a time.Duration
func (s *StabilizerConfig) GetPauseSentinelDuration() time.Duration {
	return time.Duration(s.PauseSentinelSec * float64(time.Second))
}

// GetShowStaleDuration returns the stale display window as a time.Duration
func (s *StabilizerConfig) GetShowStaleDuration() time.Duration {
	return time.Duration(s.ShowStaleSec * float64(time.Second))
}
