package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/streaming-stt-service/internal/engine"
	"github.com/skypro1111/streaming-stt-service/internal/metrics"
)

// cleanupInterval is how often the manager scans for idle sessions.
const cleanupInterval = 30 * time.Second

// Manager owns all active transcription sessions. It enforces the session
// cap, removes idle sessions and tears everything down on shutdown.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	logger  *slog.Logger
	metrics *metrics.Metrics
	engine  engine.Engine
	cfg     SessionConfig

	maxSessions int
	timeout     time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a session manager. The engine is shared across all
// sessions and closed by Stop.
func NewManager(logger *slog.Logger, eng engine.Engine, m *metrics.Metrics,
	cfg SessionConfig, maxSessions int, timeout time.Duration) *Manager {

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions:    make(map[string]*Session),
		logger:      logger,
		metrics:     m,
		engine:      eng,
		cfg:         cfg,
		maxSessions: maxSessions,
		timeout:     timeout,
		ctx:         ctx,
		cancel:      cancel,
		cleanup:     make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr
}

// CreateSession registers a new session and starts its cycle loop. The send
// callback delivers display text back to the session's client.
func (m *Manager) CreateSession(id string, send SendFunc) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.maxSessions {
		m.logger.Warn("Rejecting session, limit reached",
			slog.String("session_id", id),
			slog.Int("limit", m.maxSessions),
		)
		return nil, ErrSessionLimit
	}

	if existing, exists := m.sessions[id]; exists {
		m.logger.Warn("Session already exists", slog.String("session_id", id))
		return existing, nil
	}

	session := newSession(m.ctx, id, m.engine, send, m.logger, m.metrics, m.cfg)
	m.sessions[id] = session

	m.metrics.RecordSessionCreated()
	m.metrics.SetActiveSessions(len(m.sessions))

	m.logger.Info("Created session",
		slog.String("session_id", id),
		slog.Int("active_sessions", len(m.sessions)),
	)

	return session, nil
}

// GetSession retrieves an existing session
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// GetActiveSessionCount returns the number of currently active sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns a snapshot of all active sessions (for monitoring)
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}

// RemoveSession stops a session's cycle loop and drops it from the registry.
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if !exists {
		return false
	}

	session.Close()

	m.metrics.RecordSessionClosed(time.Since(session.StartTime).Seconds())
	m.metrics.SetActiveSessions(remaining)

	m.logger.Info("Session removed",
		slog.String("session_id", id),
		slog.Duration("duration", time.Since(session.StartTime)),
		slog.Int("active_sessions", remaining),
	)

	return true
}

// Stop gracefully stops the manager: all sessions, the cleanup routine and
// the shared engine.
func (m *Manager) Stop() {
	m.logger.Info("Stopping session manager...")

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	// Sessions close independently; waiting on them in parallel keeps
	// shutdown bounded by the slowest engine call, not their sum.
	var g errgroup.Group
	for _, session := range sessions {
		session := session
		g.Go(func() error {
			session.Close()
			m.metrics.RecordSessionClosed(time.Since(session.StartTime).Seconds())
			return nil
		})
	}
	g.Wait()
	m.metrics.SetActiveSessions(0)

	// Stop the cleanup routine before closing the engine so nothing races
	// with the teardown.
	m.cancel()
	<-m.cleanup

	if err := m.engine.Close(); err != nil {
		m.logger.Warn("Error closing recognition engine", slog.String("error", err.Error()))
	}

	m.logger.Info("Session manager stopped",
		slog.Int("sessions_closed", len(sessions)),
	)
}

// startCleanupRoutine runs in a separate goroutine to clean up idle sessions
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	m.logger.Info("Session cleanup routine started",
		slog.Duration("timeout", m.timeout),
		slog.Duration("check_interval", cleanupInterval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupIdleSessions()
		}
	}
}

// cleanupIdleSessions removes sessions with no audio ingest for longer than
// the configured timeout, and sessions whose cycle loop already gave up.
func (m *Manager) cleanupIdleSessions() {
	now := time.Now()
	var expired []string

	m.mu.RLock()
	for id, session := range m.sessions {
		select {
		case <-session.Done():
			expired = append(expired, id)
			continue
		default:
		}

		if now.Sub(session.LastActivity()) > m.timeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) > 0 {
		m.logger.Info("Cleaning up idle sessions",
			slog.Int("expired_count", len(expired)),
		)

		for _, id := range expired {
			m.RemoveSession(id)
		}
	}
}
