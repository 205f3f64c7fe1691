package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skypro1111/streaming-stt-service/internal/config"
	"github.com/skypro1111/streaming-stt-service/internal/stream"
)

func testAppConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			BindAddress: "127.0.0.1",
			Port:        9090,
			MaxSessions: 10,
		},
		HTTP: config.HTTPConfig{
			Enabled: true,
			Address: "127.0.0.1",
			Port:    8080,
		},
		Audio: config.AudioConfig{
			SampleRate:         16000,
			BufferHighWaterSec: 45,
			BufferLowWaterSec:  30,
			SessionTimeout:     300,
		},
		Transcriber: config.TranscriberConfig{
			Backend:       "http",
			Endpoint:      "http://localhost:8178",
			Language:      "en",
			Timeout:       30,
			MaxConcurrent: 10,
		},
		Stabilizer: config.StabilizerConfig{
			RepeatThreshold:  5,
			PauseSentinelSec: 3,
			ShowStaleSec:     5,
			MaxWindowSec:     25,
			OverflowKeepSec:  5,
			MinWindowSec:     1,
		},
		Display: config.DisplayConfig{
			Width:           50,
			ContextSegments: 2,
		},
		Logging: config.LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func startHTTPServer(t *testing.T) (*httptest.Server, *stream.Manager) {
	t.Helper()

	eng := &echoEngine{}
	manager := stream.NewManager(testLogger(), eng, testMetrics,
		testSessionConfig(), 10, time.Minute)
	t.Cleanup(manager.Stop)

	cfg := testAppConfig()
	h := NewHTTPServer(cfg.HTTP, testLogger(), cfg, manager, eng, testMetrics)

	srv := httptest.NewServer(h.server.Handler)
	t.Cleanup(srv.Close)

	return srv, manager
}

func getJSON(t *testing.T, url string, v interface{}) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s returned %d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := startHTTPServer(t)

	var health map[string]interface{}
	getJSON(t, srv.URL+"/health", &health)

	if health["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", health["status"])
	}
	if _, ok := health["components"]; !ok {
		t.Error("Expected components in health response")
	}
}

func TestSessionsEndpoint(t *testing.T) {
	srv, manager := startHTTPServer(t)

	var response map[string]interface{}
	getJSON(t, srv.URL+"/sessions", &response)
	if response["total_sessions"].(float64) != 0 {
		t.Errorf("Expected 0 sessions, got %v", response["total_sessions"])
	}

	manager.CreateSession("test#1", func(ctx context.Context, text string) error { return nil })

	getJSON(t, srv.URL+"/sessions", &response)
	if response["total_sessions"].(float64) != 1 {
		t.Errorf("Expected 1 session, got %v", response["total_sessions"])
	}
}

func TestSessionDetailEndpoint(t *testing.T) {
	srv, manager := startHTTPServer(t)

	manager.CreateSession("test#1", func(ctx context.Context, text string) error { return nil })

	var info stream.SessionInfo
	getJSON(t, srv.URL+"/sessions/test%231", &info)
	if info.ID != "test#1" {
		t.Errorf("Expected session test#1, got %q", info.ID)
	}

	resp, err := http.Get(srv.URL + "/sessions/unknown")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown session, got %d", resp.StatusCode)
	}
}

func TestConfigEndpointOmitsEndpoints(t *testing.T) {
	srv, _ := startHTTPServer(t)

	var cfg map[string]map[string]interface{}
	getJSON(t, srv.URL+"/config", &cfg)

	if cfg["server"]["max_sessions"].(float64) != 10 {
		t.Errorf("Expected max_sessions 10, got %v", cfg["server"]["max_sessions"])
	}
	if _, ok := cfg["transcriber"]["endpoint"]; ok {
		t.Error("Expected engine endpoint to be omitted from /config")
	}
	if _, ok := cfg["transcriber"]["model_path"]; ok {
		t.Error("Expected model path to be omitted from /config")
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := startHTTPServer(t)

	var stats map[string]interface{}
	getJSON(t, srv.URL+"/stats", &stats)

	if _, ok := stats["sessions"]; !ok {
		t.Error("Expected session stats in /stats response")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := startHTTPServer(t)

	resp, err := http.Post(srv.URL+"/health", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}
