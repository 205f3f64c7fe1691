package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skypro1111/streaming-stt-service/internal/config"
	"github.com/skypro1111/streaming-stt-service/internal/engine"
	"github.com/skypro1111/streaming-stt-service/internal/metrics"
	"github.com/skypro1111/streaming-stt-service/internal/server"
	"github.com/skypro1111/streaming-stt-service/internal/stabilizer"
	"github.com/skypro1111/streaming-stt-service/internal/stream"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "streaming-stt-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("port", cfg.Server.Port),
		slog.Int("max_sessions", cfg.Server.MaxSessions),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("buffer_high_water_sec", cfg.Audio.BufferHighWaterSec),
		slog.Float64("buffer_low_water_sec", cfg.Audio.BufferLowWaterSec),
		slog.String("engine_backend", cfg.Transcriber.Backend),
		slog.String("language", cfg.Transcriber.Language),
		slog.Int("repeat_threshold", cfg.Stabilizer.RepeatThreshold),
		slog.Float64("max_window_sec", cfg.Stabilizer.MaxWindowSec),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize the recognition engine
	eng, err := newEngine(cfg)
	if err != nil {
		logger.Error("Failed to create recognition engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Recognition engine initialized",
		slog.String("backend", cfg.Transcriber.Backend),
	)

	// Build per-session configuration
	sessionConfig := stream.SessionConfig{
		SampleRate:         cfg.Audio.SampleRate,
		BufferHighWaterSec: cfg.Audio.BufferHighWaterSec,
		BufferLowWaterSec:  cfg.Audio.BufferLowWaterSec,

		MinWindowSec:    cfg.Stabilizer.MinWindowSec,
		MaxWindowSec:    cfg.Stabilizer.MaxWindowSec,
		OverflowKeepSec: cfg.Stabilizer.OverflowKeepSec,

		EngineTimeout:          cfg.Transcriber.GetTimeoutDuration(),
		FailureBackoff:         cfg.Transcriber.GetFailureBackoff(),
		MaxConsecutiveFailures: cfg.Transcriber.MaxConsecutiveFailures,

		Stabilizer: stabilizer.Config{
			RepeatThreshold:    cfg.Stabilizer.RepeatThreshold,
			PauseSentinelAfter: cfg.Stabilizer.GetPauseSentinelDuration(),
			ShowStaleFor:       cfg.Stabilizer.GetShowStaleDuration(),
		},

		DisplayWidth:           cfg.Display.Width,
		DisplayContextSegments: cfg.Display.ContextSegments,
	}

	// Initialize session manager
	manager := stream.NewManager(logger, eng, appMetrics, sessionConfig,
		cfg.Server.MaxSessions, cfg.Audio.GetSessionTimeoutDuration())
	logger.Info("Session manager initialized",
		slog.Duration("session_timeout", cfg.Audio.GetSessionTimeoutDuration()),
	)

	// Initialize websocket server
	wsServer := server.NewWSServer(cfg.Server, logger, manager, appMetrics)
	logger.Info("Websocket server initialized")

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, manager, eng, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start websocket server
	if err := wsServer.Start(); err != nil {
		logger.Error("Failed to start websocket server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("ws_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop websocket server (stop accepting connections, drain handlers)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := wsServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping websocket server", slog.String("error", err.Error()))
	}

	// Stop session manager (cleanup sessions, close the engine)
	manager.Stop()

	// Get final statistics where the engine tracks them
	if reporter, ok := eng.(engine.StatsReporter); ok {
		stats := reporter.Stats()
		logger.Info("Final engine statistics",
			slog.Uint64("total_calls", stats.TotalCalls),
			slog.Uint64("success_calls", stats.SuccessCalls),
			slog.Uint64("failed_calls", stats.FailedCalls),
			slog.Float64("success_rate", stats.SuccessRate),
		)
	}

	logger.Info("Service stopped")
}

// newEngine builds the recognition engine selected by configuration.
func newEngine(cfg *config.Config) (engine.Engine, error) {
	switch cfg.Transcriber.Backend {
	case "native":
		return engine.NewNative(engine.NativeConfig{
			ModelPath:   cfg.Transcriber.ModelPath,
			Language:    cfg.Transcriber.Language,
			Temperature: cfg.Transcriber.Temperature,
		})
	default:
		return engine.NewClient(engine.ClientConfig{
			Endpoint:      cfg.Transcriber.Endpoint,
			Language:      cfg.Transcriber.Language,
			Temperature:   cfg.Transcriber.Temperature,
			SampleRate:    cfg.Audio.SampleRate,
			Timeout:       cfg.Transcriber.GetTimeoutDuration(),
			MaxConcurrent: cfg.Transcriber.MaxConcurrent,
		})
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
