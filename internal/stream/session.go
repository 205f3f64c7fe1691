package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/streaming-stt-service/internal/audio"
	"github.com/skypro1111/streaming-stt-service/internal/display"
	"github.com/skypro1111/streaming-stt-service/internal/engine"
	"github.com/skypro1111/streaming-stt-service/internal/metrics"
	"github.com/skypro1111/streaming-stt-service/internal/stabilizer"
)

// SendFunc delivers one display-text update to the session's client.
// It is called from the cycle loop goroutine only, so updates reach the
// transport in cycle-completion order.
type SendFunc func(ctx context.Context, text string) error

// SessionConfig contains the per-session tuning derived from service config
type SessionConfig struct {
	SampleRate         int
	BufferHighWaterSec float64
	BufferLowWaterSec  float64

	MinWindowSec    float64
	MaxWindowSec    float64
	OverflowKeepSec float64

	EngineTimeout          time.Duration
	FailureBackoff         time.Duration
	MaxConsecutiveFailures int // 0 means retry forever

	Stabilizer stabilizer.Config

	DisplayWidth           int
	DisplayContextSegments int
}

// degradedAfter is the consecutive-failure count at which a session is
// reported as degraded, ahead of any configured force-close bound.
const degradedAfter = 3

// skipSleep is how long the cycle loop waits before retrying when the
// pending window is still below the minimum, so it does not spin on an
// empty or slowly filling buffer.
const skipSleep = 100 * time.Millisecond

// Session is one client's transcription session: the audio ring, the
// stabilization state and the recognition cycle loop that connects them.
//
// The ingestion path (Ingest) and the cycle loop run concurrently and share
// only the ring, which synchronizes internally. The stabilizer and formatter
// are owned exclusively by the cycle loop goroutine.
type Session struct {
	ID        string
	StartTime time.Time

	ring      *audio.Ring
	stab      *stabilizer.Stabilizer
	formatter *display.Formatter
	engine    engine.Engine
	send      SendFunc
	logger    *slog.Logger
	metrics   *metrics.Metrics
	cfg       SessionConfig

	// Cycle-loop-owned display state.
	lastDisplay string

	// Monitoring snapshot, updated by the cycle loop and read by Info.
	mu                  sync.RWMutex
	lastActivity        time.Time
	cursor              float64
	committedLines      int
	cyclesRun           uint64
	cyclesSkipped       uint64
	promotions          uint64
	sentinels           uint64
	engineFailures      uint64
	consecutiveFailures int
	degraded            bool
	displayText         string

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// newSession wires a session together and starts its cycle loop.
func newSession(parent context.Context, id string, eng engine.Engine, send SendFunc,
	logger *slog.Logger, m *metrics.Metrics, cfg SessionConfig) *Session {

	ctx, cancel := context.WithCancel(parent)
	now := time.Now()

	s := &Session{
		ID:           id,
		StartTime:    now,
		ring:         audio.NewRing(cfg.SampleRate, cfg.BufferHighWaterSec, cfg.BufferLowWaterSec),
		stab:         stabilizer.New(cfg.Stabilizer),
		formatter:    display.New(cfg.DisplayWidth, cfg.DisplayContextSegments),
		engine:       eng,
		send:         send,
		logger:       logger.With(slog.String("session_id", id)),
		metrics:      m,
		cfg:          cfg,
		lastActivity: now,
		ctx:          ctx,
		cancel:       cancel,
	}

	s.wg.Add(1)
	go s.run()

	return s
}

// Ingest appends decoded audio samples to the session's ring buffer. It is
// safe to call while a recognition cycle is in flight.
func (s *Session) Ingest(samples []float32) {
	s.ring.Append(samples)

	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Done is closed when the session's cycle loop has been told to stop,
// whether by Close or by the session giving up on a failing engine.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Close stops the cycle loop and waits for it to finish. Safe to call
// multiple times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()

		s.logger.Info("Session closed",
			slog.Duration("duration", time.Since(s.StartTime)),
			slog.Uint64("cycles_run", s.cyclesRun),
			slog.Int("committed_lines", s.committedLines),
			slog.Uint64("engine_failures", s.engineFailures),
		)
	})
}

// run is the cycle loop: one recognition attempt after another until the
// session context is cancelled. There is no fixed inter-cycle delay; pacing
// comes from the engine call itself, the sub-minimum-window sleep and the
// post-failure backoff.
func (s *Session) run() {
	defer s.wg.Done()

	s.logger.Debug("Cycle loop started")

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("Cycle loop stopping")
			return
		default:
		}

		s.cycle()
	}
}

// cycle performs one recognition attempt.
func (s *Session) cycle() {
	end := s.ring.End()
	cursor := s.stab.Cursor()

	// Window-overflow guard: the engine has not produced a confident
	// boundary for the whole ceiling, so sacrifice the backlog and keep
	// only the most recent audio. The skipped audio is never transcribed.
	if end-cursor > s.cfg.MaxWindowSec {
		target := end - s.cfg.OverflowKeepSec
		s.logger.Warn("Window overflow, force-advancing cursor",
			slog.Float64("cursor", cursor),
			slog.Float64("buffer_end", end),
			slog.Float64("new_cursor", target),
		)
		s.stab.AdvanceCursor(target)
		s.metrics.RecordWindowOverflow()
		cursor = s.stab.Cursor()
	}

	if end-cursor < s.cfg.MinWindowSec {
		s.mu.Lock()
		s.cyclesSkipped++
		s.mu.Unlock()
		s.metrics.RecordCycleSkipped()
		s.sleep(skipSleep)
		return
	}

	window, start := s.ring.SliceFrom(cursor)
	if start > cursor {
		// The requested offset was evicted; realign to retained history.
		s.stab.AdvanceCursor(start)
	}
	windowDur := float64(len(window)) / float64(s.cfg.SampleRate)
	if windowDur < s.cfg.MinWindowSec {
		s.mu.Lock()
		s.cyclesSkipped++
		s.mu.Unlock()
		s.metrics.RecordCycleSkipped()
		s.sleep(skipSleep)
		return
	}

	prompt := s.stab.Prompt()

	callCtx, cancel := context.WithTimeout(s.ctx, s.cfg.EngineTimeout)
	callStart := time.Now()
	segs, err := s.engine.Transcribe(callCtx, window, prompt)
	callDur := time.Since(callStart)
	cancel()

	if err != nil {
		if s.ctx.Err() != nil {
			return // session shutting down, not an engine failure
		}
		s.metrics.RecordEngineCall(false, callDur.Seconds())
		s.onEngineFailure(err)
		return
	}

	s.metrics.RecordEngineCall(true, callDur.Seconds())
	s.metrics.RecordCycle(windowDur, s.ring.Duration())

	s.mu.Lock()
	s.consecutiveFailures = 0
	s.mu.Unlock()

	raw := make([]stabilizer.RawSegment, 0, len(segs))
	for _, seg := range segs {
		raw = append(raw, stabilizer.RawSegment{Text: seg.Text, Start: seg.Start, End: seg.End})
	}

	res := s.stab.Update(raw, windowDur)

	for _, line := range res.Committed {
		s.logger.Info("Line committed",
			slog.Float64("start", line.Start),
			slog.Float64("end", line.End),
			slog.String("text", line.Text),
		)
	}
	s.metrics.RecordLinesCommitted(len(res.Committed))
	if res.Promoted {
		s.metrics.RecordStallPromotion()
		s.logger.Debug("Repeat-stall promotion", slog.Float64("cursor", s.stab.Cursor()))
	}
	if res.SentinelAdded {
		s.metrics.RecordPauseSentinel()
		s.logger.Debug("Pause sentinel recorded")
	}

	var text string
	switch {
	case res.Silence && res.ShowStale:
		text = s.lastDisplay
	case res.Silence:
		text = ""
		s.lastDisplay = ""
	default:
		text = s.formatter.Render(s.stab.CommittedTexts(), res.Provisional)
		s.lastDisplay = text
	}

	if err := s.send(s.ctx, text); err != nil && s.ctx.Err() == nil {
		s.logger.Debug("Failed to deliver display text", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	s.cyclesRun++
	s.cursor = s.stab.Cursor()
	s.committedLines = s.stab.CommittedCount()
	if res.Promoted {
		s.promotions++
	}
	if res.SentinelAdded {
		s.sentinels++
	}
	s.displayText = text
	s.mu.Unlock()
}

// onEngineFailure records one failed engine call, applies the backoff and
// decides whether the session should degrade or give up entirely.
func (s *Session) onEngineFailure(err error) {
	s.mu.Lock()
	s.engineFailures++
	s.consecutiveFailures++
	failures := s.consecutiveFailures
	alreadyDegraded := s.degraded
	if failures >= degradedAfter {
		s.degraded = true
	}
	s.mu.Unlock()

	s.logger.Error("Engine call failed",
		slog.String("error", err.Error()),
		slog.Int("consecutive_failures", failures),
	)

	if failures >= degradedAfter && !alreadyDegraded {
		s.logger.Warn("Session degraded after repeated engine failures",
			slog.Int("consecutive_failures", failures),
		)
	}

	if s.cfg.MaxConsecutiveFailures > 0 && failures >= s.cfg.MaxConsecutiveFailures {
		s.logger.Error("Giving up on session after repeated engine failures",
			slog.Int("consecutive_failures", failures),
			slog.Int("limit", s.cfg.MaxConsecutiveFailures),
		)
		s.cancel()
		return
	}

	s.sleep(s.cfg.FailureBackoff)
}

// sleep waits for d or until the session is cancelled.
func (s *Session) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
	case <-timer.C:
	}
}

// LastActivity returns the time of the last audio ingest.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Transcript returns the committed transcript entries accumulated so far,
// sentinels included. Only valid after Close, when the cycle loop no longer
// mutates the stabilizer.
func (s *Session) Transcript() []string {
	select {
	case <-s.ctx.Done():
	default:
		return nil
	}
	s.wg.Wait()
	return s.stab.CommittedTexts()
}

// Info returns a monitoring snapshot of the session.
func (s *Session) Info() SessionInfo {
	ringStats := s.ring.Stats()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		ID:                  s.ID,
		StartTime:           s.StartTime,
		LastActivity:        s.lastActivity,
		Duration:            time.Since(s.StartTime),
		Buffer:              ringStats,
		CursorOffset:        s.cursor,
		CommittedLines:      s.committedLines,
		CyclesRun:           s.cyclesRun,
		CyclesSkipped:       s.cyclesSkipped,
		StallPromotions:     s.promotions,
		PauseSentinels:      s.sentinels,
		EngineFailures:      s.engineFailures,
		ConsecutiveFailures: s.consecutiveFailures,
		Degraded:            s.degraded,
		DisplayText:         s.displayText,
	}
}

// SessionInfo represents session state for monitoring and APIs
type SessionInfo struct {
	ID           string          `json:"id"`
	StartTime    time.Time       `json:"start_time"`
	LastActivity time.Time       `json:"last_activity"`
	Duration     time.Duration   `json:"duration"`
	Buffer       audio.RingStats `json:"buffer"`

	CursorOffset   float64 `json:"cursor_offset"`
	CommittedLines int     `json:"committed_lines"`
	CyclesRun      uint64  `json:"cycles_run"`
	CyclesSkipped  uint64  `json:"cycles_skipped"`

	StallPromotions uint64 `json:"stall_promotions"`
	PauseSentinels  uint64 `json:"pause_sentinels"`

	EngineFailures      uint64 `json:"engine_failures"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Degraded            bool   `json:"degraded"`

	DisplayText string `json:"display_text"`
}

// ErrSessionLimit is returned when the configured session cap is reached.
var ErrSessionLimit = errors.New("session limit reached")
