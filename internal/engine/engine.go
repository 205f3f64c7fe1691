package engine

import (
	"context"
	"time"
)

// Segment is one recognized span of speech, with offsets in seconds relative
// to the start of the submitted window.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Engine is the recognition backend abstraction. Transcribe must be callable
// repeatedly and independently per session. An empty segment list means "no
// speech detected"; failures are reported as errors, never as empty results.
//
// Implementations must be safe for concurrent use across sessions. Callers
// must not issue concurrent Transcribe calls for the same session.
type Engine interface {
	// Transcribe recognizes speech in the given mono float32 samples. A
	// non-empty prompt is passed to the backend as textual context for
	// continuity with previously committed transcript lines.
	Transcribe(ctx context.Context, samples []float32, prompt string) ([]Segment, error)

	// Close releases backend resources. Transcribe must not be called after
	// Close.
	Close() error
}

// Stats represents engine call statistics for monitoring.
type Stats struct {
	TotalCalls      uint64        `json:"total_calls"`
	SuccessCalls    uint64        `json:"success_calls"`
	FailedCalls     uint64        `json:"failed_calls"`
	SuccessRate     float64       `json:"success_rate"`
	AvgCallDuration time.Duration `json:"avg_call_duration"`
}

// StatsReporter is implemented by engines that track call statistics.
type StatsReporter interface {
	Stats() Stats
}
