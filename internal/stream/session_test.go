package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/skypro1111/streaming-stt-service/internal/engine"
	"github.com/skypro1111/streaming-stt-service/internal/metrics"
	"github.com/skypro1111/streaming-stt-service/internal/stabilizer"
)

// Prometheus collectors register globally, so the test binary shares one set.
var testMetrics = metrics.NewMetrics()

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		SampleRate:         16000,
		BufferHighWaterSec: 45,
		BufferLowWaterSec:  30,

		MinWindowSec:    0.5,
		MaxWindowSec:    25,
		OverflowKeepSec: 5,

		EngineTimeout:          time.Second,
		FailureBackoff:         time.Millisecond,
		MaxConsecutiveFailures: 0,

		Stabilizer: stabilizer.Config{
			RepeatThreshold:    5,
			PauseSentinelAfter: 3 * time.Second,
			ShowStaleFor:       5 * time.Second,
		},

		DisplayWidth:           50,
		DisplayContextSegments: 2,
	}
}

// fakeEngine scripts per-call responses and records the submitted windows.
type fakeEngine struct {
	mu      sync.Mutex
	calls   int
	windows []int
	prompts []string
	respond func(call int) ([]engine.Segment, error)
}

func (f *fakeEngine) Transcribe(ctx context.Context, samples []float32, prompt string) ([]engine.Segment, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.windows = append(f.windows, len(samples))
	f.prompts = append(f.prompts, prompt)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		return respond(call)
	}
	return nil, nil
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEngine) window(i int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.windows[i]
}

func (f *fakeEngine) prompt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[i]
}

// sendRecorder captures display-text updates in delivery order.
type sendRecorder struct {
	mu    sync.Mutex
	texts []string
	ch    chan string
}

func newSendRecorder() *sendRecorder {
	return &sendRecorder{ch: make(chan string, 128)}
}

func (r *sendRecorder) send(ctx context.Context, text string) error {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()

	select {
	case r.ch <- text:
	default:
	}
	return nil
}

func (r *sendRecorder) wait(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case text := <-r.ch:
		return text
	case <-time.After(timeout):
		t.Fatal("Timed out waiting for a display-text update")
		return ""
	}
}

func startSession(t *testing.T, eng *fakeEngine, rec *sendRecorder, cfg SessionConfig) *Session {
	t.Helper()
	s := newSession(context.Background(), "test#1", eng, rec.send, testLogger(), testMetrics, cfg)
	t.Cleanup(s.Close)
	return s
}

func TestNoEngineCallWithoutAudio(t *testing.T) {
	eng := &fakeEngine{}
	s := startSession(t, eng, newSendRecorder(), testSessionConfig())

	time.Sleep(150 * time.Millisecond)
	s.Close()

	if eng.callCount() != 0 {
		t.Errorf("Expected no engine calls on an empty buffer, got %d", eng.callCount())
	}
}

func TestCycleCommitsAndSendsDisplayText(t *testing.T) {
	eng := &fakeEngine{
		respond: func(call int) ([]engine.Segment, error) {
			if call == 1 {
				return []engine.Segment{
					{Text: "hello", Start: 0, End: 1.0},
					{Text: " world", Start: 1.0, End: 2.0},
				}, nil
			}
			return nil, nil
		},
	}
	rec := newSendRecorder()
	s := startSession(t, eng, rec, testSessionConfig())

	s.Ingest(make([]float32, 2*16000))

	text := rec.wait(t, 2*time.Second)
	if text != "hello world" {
		t.Errorf("Expected display text 'hello world', got %q", text)
	}

	s.Close()

	info := s.Info()
	if info.CommittedLines != 1 {
		t.Errorf("Expected 1 committed line, got %d", info.CommittedLines)
	}
	if info.CursorOffset != 1.0 {
		t.Errorf("Expected cursor 1.0, got %f", info.CursorOffset)
	}
}

func TestPromptCarriesLastCommittedLine(t *testing.T) {
	eng := &fakeEngine{
		respond: func(call int) ([]engine.Segment, error) {
			if call == 1 {
				return []engine.Segment{
					{Text: "first line", Start: 0, End: 1.0},
					{Text: "tail", Start: 1.0, End: 2.0},
				}, nil
			}
			return nil, nil
		},
	}
	rec := newSendRecorder()
	s := startSession(t, eng, rec, testSessionConfig())

	s.Ingest(make([]float32, 2*16000))

	// Wait until at least two engine calls happened.
	deadline := time.Now().Add(2 * time.Second)
	for eng.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Close()

	if eng.callCount() < 2 {
		t.Fatal("Expected at least two engine calls")
	}
	if got := eng.prompt(0); got != "" {
		t.Errorf("Expected empty prompt on first call, got %q", got)
	}
	if got := eng.prompt(1); got != "first line" {
		t.Errorf("Expected committed line as prompt, got %q", got)
	}
}

func TestWindowOverflowGuard(t *testing.T) {
	cfg := testSessionConfig()
	cfg.MaxWindowSec = 2.0
	cfg.OverflowKeepSec = 1.0

	eng := &fakeEngine{}
	rec := newSendRecorder()
	s := startSession(t, eng, rec, cfg)

	// 4 seconds of audio exceeds the 2 second ceiling.
	s.Ingest(make([]float32, 4*16000))

	deadline := time.Now().Add(2 * time.Second)
	for eng.callCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Close()

	if eng.callCount() < 1 {
		t.Fatal("Expected at least one engine call")
	}
	if window := eng.window(0); window > 2*16000 {
		t.Errorf("Window exceeds ceiling after overflow guard: %d samples", window)
	}
	if cursor := s.Info().CursorOffset; cursor < 3.0 {
		t.Errorf("Expected cursor force-advanced to 3.0, got %f", cursor)
	}
}

func TestEngineFailureBoundClosesSession(t *testing.T) {
	cfg := testSessionConfig()
	cfg.MaxConsecutiveFailures = 3

	eng := &fakeEngine{
		respond: func(call int) ([]engine.Segment, error) {
			return nil, errors.New("engine down")
		},
	}
	rec := newSendRecorder()
	s := startSession(t, eng, rec, cfg)

	s.Ingest(make([]float32, 2*16000))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Expected session to give up after repeated engine failures")
	}

	s.Close()

	info := s.Info()
	if !info.Degraded {
		t.Error("Expected session to be marked degraded")
	}
	if info.EngineFailures < 3 {
		t.Errorf("Expected at least 3 recorded failures, got %d", info.EngineFailures)
	}
}

func TestEngineFailuresAreRetriedWithoutBound(t *testing.T) {
	eng := &fakeEngine{
		respond: func(call int) ([]engine.Segment, error) {
			if call < 4 {
				return nil, errors.New("transient")
			}
			return []engine.Segment{
				{Text: "recovered", Start: 0, End: 1.0},
				{Text: "tail", Start: 1.0, End: 2.0},
			}, nil
		},
	}
	rec := newSendRecorder()
	s := startSession(t, eng, rec, testSessionConfig())

	s.Ingest(make([]float32, 2*16000))

	text := rec.wait(t, 2*time.Second)
	if text == "" {
		t.Error("Expected display text after engine recovery")
	}

	s.Close()

	info := s.Info()
	if info.EngineFailures != 3 {
		t.Errorf("Expected 3 recorded failures, got %d", info.EngineFailures)
	}
	if info.ConsecutiveFailures != 0 {
		t.Errorf("Expected consecutive failure count reset, got %d", info.ConsecutiveFailures)
	}
}

func TestTranscriptAvailableAfterClose(t *testing.T) {
	eng := &fakeEngine{
		respond: func(call int) ([]engine.Segment, error) {
			if call == 1 {
				return []engine.Segment{
					{Text: "hello", Start: 0, End: 1.0},
					{Text: " world", Start: 1.0, End: 2.0},
				}, nil
			}
			return nil, nil
		},
	}
	rec := newSendRecorder()
	s := startSession(t, eng, rec, testSessionConfig())

	s.Ingest(make([]float32, 2*16000))
	rec.wait(t, 2*time.Second)

	if got := s.Transcript(); got != nil {
		t.Errorf("Expected nil transcript while session is running, got %v", got)
	}

	s.Close()

	transcript := s.Transcript()
	if len(transcript) != 1 || transcript[0] != "hello" {
		t.Errorf("Expected transcript [hello], got %v", transcript)
	}
}

func TestManagerSessionLimit(t *testing.T) {
	mgr := NewManager(testLogger(), &fakeEngine{}, testMetrics, testSessionConfig(), 1, time.Minute)
	defer mgr.Stop()

	rec := newSendRecorder()
	if _, err := mgr.CreateSession("a", rec.send); err != nil {
		t.Fatalf("First session rejected: %v", err)
	}

	if _, err := mgr.CreateSession("b", rec.send); !errors.Is(err, ErrSessionLimit) {
		t.Errorf("Expected ErrSessionLimit, got %v", err)
	}

	mgr.RemoveSession("a")
	if _, err := mgr.CreateSession("b", rec.send); err != nil {
		t.Errorf("Expected session creation after removal, got %v", err)
	}
}

func TestManagerRemoveSession(t *testing.T) {
	mgr := NewManager(testLogger(), &fakeEngine{}, testMetrics, testSessionConfig(), 10, time.Minute)
	defer mgr.Stop()

	rec := newSendRecorder()
	s, err := mgr.CreateSession("a", rec.send)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if got := mgr.GetActiveSessionCount(); got != 1 {
		t.Errorf("Expected 1 active session, got %d", got)
	}

	if !mgr.RemoveSession("a") {
		t.Error("Expected RemoveSession to report success")
	}
	if mgr.RemoveSession("a") {
		t.Error("Expected second RemoveSession to report failure")
	}

	select {
	case <-s.Done():
	default:
		t.Error("Expected removed session to be stopped")
	}

	if got := mgr.GetActiveSessionCount(); got != 0 {
		t.Errorf("Expected 0 active sessions, got %d", got)
	}
}

func TestManagerStopClosesAllSessions(t *testing.T) {
	mgr := NewManager(testLogger(), &fakeEngine{}, testMetrics, testSessionConfig(), 10, time.Minute)

	rec := newSendRecorder()
	a, _ := mgr.CreateSession("a", rec.send)
	b, _ := mgr.CreateSession("b", rec.send)

	mgr.Stop()

	for _, s := range []*Session{a, b} {
		select {
		case <-s.Done():
		default:
			t.Errorf("Expected session %s to be stopped", s.ID)
		}
	}
}
