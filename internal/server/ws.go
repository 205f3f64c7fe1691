package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/skypro1111/streaming-stt-service/internal/config"
	"github.com/skypro1111/streaming-stt-service/internal/metrics"
	"github.com/skypro1111/streaming-stt-service/internal/protocol"
	"github.com/skypro1111/streaming-stt-service/internal/stream"
)

// sendTimeout bounds a single outbound display-text write.
const sendTimeout = 5 * time.Second

// WSServer accepts websocket connections carrying audio frames and owns one
// transcription session per connection. Display text flows back over the
// same connection.
type WSServer struct {
	server  *http.Server
	logger  *slog.Logger
	manager *stream.Manager
	metrics *metrics.Metrics
	config  config.ServerConfig

	connSeq atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWSServer creates the websocket ingest server.
func NewWSServer(cfg config.ServerConfig, logger *slog.Logger,
	manager *stream.Manager, m *metrics.Metrics) *WSServer {

	ctx, cancel := context.WithCancel(context.Background())

	s := &WSServer{
		logger:  logger,
		manager: manager,
		metrics: m,
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleConnection)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		Handler: mux,
	}

	return s
}

// Start begins accepting websocket connections
func (s *WSServer) Start() error {
	s.logger.Info("Starting websocket server",
		slog.String("address", s.server.Addr),
		slog.Int("max_sessions", s.config.MaxSessions),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Websocket server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the server: no new connections, existing handlers
// unblocked and waited for.
func (s *WSServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping websocket server...")

	s.cancel()
	err := s.server.Shutdown(ctx)
	s.wg.Wait()

	return err
}

// handleConnection upgrades one HTTP request and runs its session until the
// connection or the session ends.
func (s *WSServer) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("Websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	s.metrics.RecordConnectionAccepted()

	sessionID := fmt.Sprintf("%s#%d", r.RemoteAddr, s.connSeq.Add(1))
	logger := s.logger.With(slog.String("session_id", sessionID))

	logger.Info("Client connected", slog.String("remote_addr", r.RemoteAddr))

	send := func(ctx context.Context, text string) error {
		wctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		return conn.Write(wctx, websocket.MessageText, []byte(text))
	}

	session, err := s.manager.CreateSession(sessionID, send)
	if err != nil {
		logger.Warn("Rejecting connection", slog.String("error", err.Error()))
		conn.Close(websocket.StatusTryAgainLater, "session limit reached")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(conn, session, logger)
		s.manager.RemoveSession(sessionID)

		if transcript := session.Transcript(); len(transcript) > 0 {
			logger.Info("Session transcript finalized",
				slog.Int("lines", len(transcript)),
			)
		}
	}()
}

// readLoop consumes inbound messages until the connection closes, the
// server shuts down or the session's cycle loop gives up.
func (s *WSServer) readLoop(conn *websocket.Conn, session *stream.Session, logger *slog.Logger) {
	defer conn.Close(websocket.StatusNormalClosure, "session ended")

	// Unblock the pending Read when the session dies on its own (engine
	// failure bound) or the server stops.
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() {
		select {
		case <-session.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Info("Client disconnected")
			} else if ctx.Err() != nil {
				logger.Info("Connection closed by server")
			} else {
				logger.Warn("Connection error", slog.String("error", err.Error()))
			}
			return
		}

		switch msgType {
		case websocket.MessageText:
			s.metrics.RecordControlMessage()
			if protocol.IsEndOfStream(string(data)) {
				logger.Info("End of stream signalled by client")
			} else {
				logger.Info("Control message received", slog.String("message", string(data)))
			}

		case websocket.MessageBinary:
			samples, err := protocol.DecodeSamples(data)
			if err != nil {
				s.metrics.RecordFrameDropped()
				logger.Warn("Dropping malformed audio frame",
					slog.Int("size_bytes", len(data)),
					slog.String("error", err.Error()),
				)
				continue
			}
			session.Ingest(samples)
			s.metrics.RecordFrameReceived(len(data))

		default:
			s.metrics.RecordFrameDropped()
			logger.Warn("Dropping message of unknown type", slog.Int("type", int(msgType)))
		}
	}
}
