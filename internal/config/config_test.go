package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			BindAddress: "0.0.0.0",
			Port:        9090,
			MaxSessions: 100,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "0.0.0.0",
			Port:    8080,
		},
		Audio: AudioConfig{
			SampleRate:         16000,
			BufferHighWaterSec: 45,
			BufferLowWaterSec:  30,
			SessionTimeout:     300,
		},
		Transcriber: TranscriberConfig{
			Backend:                "http",
			Endpoint:               "http://localhost:8178",
			Language:               "en",
			Timeout:                30,
			MaxConcurrent:          10,
			MaxConsecutiveFailures: 30,
			FailureBackoffMs:       10,
		},
		Stabilizer: StabilizerConfig{
			RepeatThreshold:  5,
			PauseSentinelSec: 3,
			ShowStaleSec:     5,
			MaxWindowSec:     25,
			OverflowKeepSec:  5,
			MinWindowSec:     1,
		},
		Display: DisplayConfig{
			Width:           50,
			ContextSegments: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestValidConfigPasses(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Valid config failed validation: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  bind_address: "127.0.0.1"
  port: 9090
  max_sessions: 10
http:
  enabled: false
audio:
  sample_rate: 16000
  buffer_high_water_sec: 45.0
  buffer_low_water_sec: 30.0
  session_timeout: 120
transcriber:
  backend: "native"
  model_path: "models/ggml-base.en.bin"
  language: "en"
  timeout: 20
  max_concurrent: 4
  failure_backoff_ms: 10
stabilizer:
  repeat_threshold: 5
  pause_sentinel_sec: 3.0
  show_stale_sec: 5.0
  max_window_sec: 25.0
  overflow_keep_sec: 5.0
  min_window_sec: 1.0
display:
  width: 50
  context_segments: 2
logging:
  level: "debug"
  format: "text"
  output: "stderr"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.MaxSessions != 10 {
		t.Errorf("Unexpected server config: %+v", cfg.Server)
	}
	if cfg.Transcriber.Backend != "native" {
		t.Errorf("Expected native backend, got %s", cfg.Transcriber.Backend)
	}
	if cfg.Stabilizer.RepeatThreshold != 5 {
		t.Errorf("Expected repeat threshold 5, got %d", cfg.Stabilizer.RepeatThreshold)
	}
	if cfg.Audio.GetSessionTimeoutDuration() != 2*time.Minute {
		t.Errorf("Unexpected session timeout: %v", cfg.Audio.GetSessionTimeoutDuration())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestSampleRateMustBe16k(t *testing.T) {
	cfg := validConfig()
	cfg.Audio.SampleRate = 8000

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for non-16kHz sample rate")
	}
}

func TestWaterMarkOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.Audio.BufferLowWaterSec = 50 // above high-water

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for low-water above high-water")
	}
}

func TestHTTPBackendRequiresEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Transcriber.Endpoint = ""

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for http backend without endpoint")
	}
}

func TestNativeBackendRequiresModelPath(t *testing.T) {
	cfg := validConfig()
	cfg.Transcriber.Backend = "native"
	cfg.Transcriber.ModelPath = ""

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for native backend without model path")
	}
}

func TestUnknownBackendRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Transcriber.Backend = "grpc"

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for unknown backend")
	}
}

func TestOverflowKeepBelowMaxWindow(t *testing.T) {
	cfg := validConfig()
	cfg.Stabilizer.OverflowKeepSec = 30 // above max_window_sec

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for overflow_keep_sec above max_window_sec")
	}
}

func TestLoggingValidation(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for unknown log level")
	}

	cfg = validConfig()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for unknown log format")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := validConfig()

	if cfg.Transcriber.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("Unexpected engine timeout: %v", cfg.Transcriber.GetTimeoutDuration())
	}
	if cfg.Transcriber.GetFailureBackoff() != 10*time.Millisecond {
		t.Errorf("Unexpected failure backoff: %v", cfg.Transcriber.GetFailureBackoff())
	}
	if cfg.Stabilizer.GetPauseSentinelDuration() != 3*time.Second {
		t.Errorf("Unexpected pause sentinel duration: %v", cfg.Stabilizer.GetPauseSentinelDuration())
	}
	if cfg.Stabilizer.GetShowStaleDuration() != 5*time.Second {
		t.Errorf("Unexpected show stale duration: %v", cfg.Stabilizer.GetShowStaleDuration())
	}
}
