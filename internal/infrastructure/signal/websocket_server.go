package signal

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"streamhub/internal/core/domain"
	"streamhub/pkg/config"
	ctxlog "streamhub/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options are the transport settings of the websocket endpoint.
type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	AuthTimeout    time.Duration
	SendQueueSize  int
	MaxMessageSize int64
	AllowedOrigins []string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		AuthTimeout:    cfg.Signal.AuthTimeout,
		SendQueueSize:  cfg.Signal.SendQueueSize,
		MaxMessageSize: cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		AllowedOrigins: cfg.Signal.AllowedOrigins,
	}
}

// WebSocketServer accepts client sockets and runs one Session per socket.
type WebSocketServer struct {
	supervisor *Supervisor
	opts       Options
	upgrader   websocket.Upgrader
	logger     *zap.SugaredLogger

	// base is cancelled on shutdown so every connection loop exits.
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

func NewWebSocketServer(supervisor *Supervisor, opts Options, logger *zap.SugaredLogger) *WebSocketServer {
	base, cancel := context.WithCancel(context.Background())
	s := &WebSocketServer{
		supervisor: supervisor,
		opts:       opts,
		logger:     logger,
		base:       base,
		cancel:     cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// Shutdown refuses new sockets, makes every open connection run its
// cleanup and waits for those cleanups until ctx is done.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.sessions.Add(1)
	s.mu.Unlock()
	defer s.sessions.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	if s.opts.MaxMessageSize > 0 {
		ws.SetReadLimit(s.opts.MaxMessageSize)
	}

	conn := newConnection(domain.ConnectionID(uuid.NewString()), ws, s.opts.SendQueueSize)
	go conn.writePump(s.opts.PingInterval, s.opts.WriteTimeout)

	session := s.supervisor.Open(conn)
	s.logger.Infow("Client connected", "connection_id", conn.ID(), "remote_addr", r.RemoteAddr)

	s.serve(ctxlog.WithConnectionID(s.base, string(conn.ID())), ws, conn, session)
}

// serve runs the connection loop. A read deadline of PongTimeout,
// extended on every frame or pong, detects half-open sockets; the writer
// pings every PingInterval to keep it moving.
func (s *WebSocketServer) serve(ctx context.Context, ws *websocket.Conn, conn *Connection, session *Session) {
	defer session.Close(context.Background())

	_ = ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	messageChan := make(chan []byte)
	errorChan := make(chan error, 1)

	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				errorChan <- err
				return
			}
			_ = ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
			select {
			case messageChan <- data:
			case <-conn.Done():
				return
			}
		}
	}()

	var authDeadline <-chan time.Time
	if s.opts.AuthTimeout > 0 {
		authTimer := time.NewTimer(s.opts.AuthTimeout)
		defer authTimer.Stop()
		authDeadline = authTimer.C
	}

	for {
		select {
		case data := <-messageChan:
			if !session.Handle(ctx, data) {
				return
			}

		case <-authDeadline:
			if st := session.State(); st == StateUnauthenticated || st == StateAuthenticating {
				session.sendError(domain.ErrNotAuthenticated)
				s.logger.Infow("Closing connection that never authenticated", "connection_id", conn.ID())
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("Connection read failed", "connection_id", conn.ID(), "error", err)
			}
			return

		case <-conn.Done():
			return

		case <-ctx.Done():
			return
		}
	}
}
