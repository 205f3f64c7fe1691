package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the streaming STT service
type Metrics struct {
	// Websocket transport metrics
	ConnectionsAccepted prometheus.Counter
	FramesReceived      prometheus.Counter
	FramesDropped       prometheus.Counter
	ControlMessages     prometheus.Counter
	BytesReceived       prometheus.Counter

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsClosed  prometheus.Counter
	SessionDuration prometheus.Histogram

	// Recognition cycle metrics
	CyclesRun        prometheus.Counter
	CyclesSkipped    prometheus.Counter
	WindowOverflows  prometheus.Counter
	WindowDuration   prometheus.Histogram
	LinesCommitted   prometheus.Counter
	StallPromotions  prometheus.Counter
	PauseSentinels   prometheus.Counter
	BufferedDuration prometheus.Histogram

	// Engine metrics
	EngineCalls     prometheus.Counter
	EngineSuccesses prometheus.Counter
	EngineFailures  prometheus.Counter
	EngineDuration  prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Websocket transport metrics
		ConnectionsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_connections_accepted_total",
			Help: "Total number of websocket connections accepted",
		}),
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_frames_received_total",
			Help: "Total number of binary audio frames received",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_frames_dropped_total",
			Help: "Total number of malformed frames dropped",
		}),
		ControlMessages: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_control_messages_total",
			Help: "Total number of text control messages received",
		}),
		BytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_bytes_received_total",
			Help: "Total number of audio payload bytes received",
		}),

		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stt_active_sessions",
			Help: "Current number of active transcription sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_sessions_closed_total",
			Help: "Total number of sessions closed",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_session_duration_seconds",
			Help:    "Duration of transcription sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		// Recognition cycle metrics
		CyclesRun: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_cycles_run_total",
			Help: "Total number of recognition cycles executed",
		}),
		CyclesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_cycles_skipped_total",
			Help: "Total number of cycles skipped for sub-minimum windows",
		}),
		WindowOverflows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_window_overflows_total",
			Help: "Total number of forced cursor advances on oversized windows",
		}),
		WindowDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_window_duration_seconds",
			Help:    "Duration of audio windows submitted to the engine",
			Buckets: prometheus.LinearBuckets(1, 3, 9), // 1s to 25s
		}),
		LinesCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_lines_committed_total",
			Help: "Total number of transcript lines committed",
		}),
		StallPromotions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_stall_promotions_total",
			Help: "Total number of repeat-stall promotions",
		}),
		PauseSentinels: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_pause_sentinels_total",
			Help: "Total number of silence sentinels recorded",
		}),
		BufferedDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_buffered_duration_seconds",
			Help:    "Buffered audio duration sampled at cycle start",
			Buckets: prometheus.LinearBuckets(0, 5, 10), // 0s to 45s
		}),

		// Engine metrics
		EngineCalls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_engine_calls_total",
			Help: "Total number of recognition engine calls",
		}),
		EngineSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_engine_successes_total",
			Help: "Total number of successful recognition engine calls",
		}),
		EngineFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_engine_failures_total",
			Help: "Total number of failed recognition engine calls",
		}),
		EngineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_engine_call_duration_seconds",
			Help:    "Duration of recognition engine calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stt_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordConnectionAccepted increments the connections accepted counter
func (m *Metrics) RecordConnectionAccepted() {
	m.ConnectionsAccepted.Inc()
}

// RecordFrameReceived records one accepted audio frame and its payload size
func (m *Metrics) RecordFrameReceived(sizeBytes int) {
	m.FramesReceived.Inc()
	m.BytesReceived.Add(float64(sizeBytes))
}

// RecordFrameDropped increments the dropped frames counter
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// RecordControlMessage increments the control messages counter
func (m *Metrics) RecordControlMessage() {
	m.ControlMessages.Inc()
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionClosed increments the sessions closed counter and records duration
func (m *Metrics) RecordSessionClosed(durationSeconds float64) {
	m.SessionsClosed.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordCycle records one executed recognition cycle
func (m *Metrics) RecordCycle(windowSeconds, bufferedSeconds float64) {
	m.CyclesRun.Inc()
	m.WindowDuration.Observe(windowSeconds)
	m.BufferedDuration.Observe(bufferedSeconds)
}

// RecordCycleSkipped increments the skipped cycles counter
func (m *Metrics) RecordCycleSkipped() {
	m.CyclesSkipped.Inc()
}

// RecordWindowOverflow increments the window overflow counter
func (m *Metrics) RecordWindowOverflow() {
	m.WindowOverflows.Inc()
}

// RecordLinesCommitted adds to the committed lines counter
func (m *Metrics) RecordLinesCommitted(count int) {
	if count > 0 {
		m.LinesCommitted.Add(float64(count))
	}
}

// RecordStallPromotion increments the stall promotions counter
func (m *Metrics) RecordStallPromotion() {
	m.StallPromotions.Inc()
}

// RecordPauseSentinel increments the pause sentinels counter
func (m *Metrics) RecordPauseSentinel() {
	m.PauseSentinels.Inc()
}

// RecordEngineCall records one engine call and its outcome
func (m *Metrics) RecordEngineCall(success bool, durationSeconds float64) {
	m.EngineCalls.Inc()
	if success {
		m.EngineSuccesses.Inc()
	} else {
		m.EngineFailures.Inc()
	}
	m.EngineDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
