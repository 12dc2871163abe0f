// Package client is a Go client for the realtime websocket endpoint. It
// keeps one authenticated connection alive with an application-level
// heartbeat and reconnects with exponential backoff when it is lost,
// re-joining the streams the caller had joined.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"streamhub/internal/core/domain"
	"streamhub/pkg/validation"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAuthRejected     = errors.New("authentication rejected")
	ErrConnectTimeout   = errors.New("connect timeout")
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
	ErrClosed           = errors.New("client closed")
)

const writeTimeout = 10 * time.Second

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateReconnecting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type ConnectionStatus struct {
	Connected         bool                `json:"connected"`
	ReconnectAttempts int                 `json:"reconnectAttempts"`
	ConnectionID      domain.ConnectionID `json:"connectionId,omitempty"`
}

// Handler receives the raw payload of one server event. Handlers run on
// the reader goroutine and must not block.
type Handler func(payload json.RawMessage)

type envelope struct {
	Type    domain.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

type streamRequest struct {
	StreamID domain.StreamID `json:"streamId"`
}

type chatRequest struct {
	StreamID domain.StreamID `json:"streamId"`
	Message  string          `json:"message"`
}

type mediaRequest struct {
	StreamID   domain.StreamID `json:"streamId"`
	ProducerID string          `json:"producerId,omitempty"`
	ConsumerID string          `json:"consumerId,omitempty"`
	Kind       string          `json:"kind,omitempty"`
}

type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *zap.SugaredLogger

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	connID    domain.ConnectionID
	reconnect ReconnectState
	rooms     []domain.StreamID
	handlers  map[domain.EventType][]Handler
	listeners []func(State, ConnectionStatus)

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(cfg Config, logger *zap.SugaredLogger) (*Client, error) {
	if err := validation.ValidateURL(cfg.URL); err != nil {
		return nil, fmt.Errorf("client url: %w", err)
	}
	if cfg.HeartbeatInterval <= 0 || cfg.HeartbeatTimeout <= 0 || cfg.ConnectTimeout <= 0 {
		return nil, errors.New("heartbeat interval, heartbeat timeout and connect timeout must be > 0")
	}
	if cfg.MaxReconnects <= 0 {
		return nil, errors.New("max reconnects must be > 0")
	}

	return &Client{
		cfg:       cfg,
		dialer:    &websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout},
		logger:    logger.With("url", cfg.URL),
		reconnect: NewReconnectState(cfg.ReconnectDelay, cfg.ReconnectMaxDelay, cfg.ReconnectFactor, cfg.MaxReconnects),
		handlers:  make(map[domain.EventType][]Handler),
		done:      make(chan struct{}),
	}, nil
}

// On registers h for events of type t.
func (c *Client) On(t domain.EventType, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[t] = append(c.handlers[t], h)
}

// OnStateChange registers fn for every state transition, including each
// new reconnect attempt.
func (c *Client) OnStateChange(fn func(State, ConnectionStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Client) statusLocked() ConnectionStatus {
	return ConnectionStatus{
		Connected:         c.state == StateAuthenticated,
		ReconnectAttempts: c.reconnect.Attempts(),
		ConnectionID:      c.connID,
	}
}

// Rooms returns the streams that will be re-joined after a reconnect.
func (c *Client) Rooms() []domain.StreamID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.rooms)
}

// Connect dials and authenticates. It is a no-op while a connection is
// up or being re-established.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateAuthenticated, StateReconnecting, StateConnecting:
		c.mu.Unlock()
		return nil
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	c.transition(StateConnecting)
	conn, connID, err := c.dial(ctx)
	if err != nil {
		c.transition(StateDisconnected)
		return err
	}
	if !c.established(conn, connID, true) {
		return ErrClosed
	}
	go c.run(conn)
	return nil
}

// Close stops reconnecting and closes the connection. It must not be
// called from a Handler or a state listener.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.transition(StateClosed)
	})
	c.wg.Wait()
	return nil
}

func (c *Client) JoinStream(streamID domain.StreamID) error {
	if err := validation.ValidateStreamID(string(streamID)); err != nil {
		return err
	}
	if err := c.send(domain.EventJoinStream, streamRequest{StreamID: streamID}); err != nil {
		return err
	}
	c.mu.Lock()
	if !lo.Contains(c.rooms, streamID) {
		c.rooms = append(c.rooms, streamID)
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) LeaveStream(streamID domain.StreamID) error {
	c.mu.Lock()
	c.rooms = lo.Without(c.rooms, streamID)
	c.mu.Unlock()
	return c.send(domain.EventLeaveStream, streamRequest{StreamID: streamID})
}

// SendChat refuses blank messages before they reach the wire.
func (c *Client) SendChat(streamID domain.StreamID, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.ErrEmptyMessage
	}
	return c.send(domain.EventChatMessage, chatRequest{StreamID: streamID, Message: message})
}

func (c *Client) SendSystemMessage(streamID domain.StreamID, message string) error {
	return c.send(domain.EventSystemMessage, chatRequest{StreamID: streamID, Message: message})
}

func (c *Client) ListViewers(streamID domain.StreamID) error {
	return c.send(domain.EventListViewers, streamRequest{StreamID: streamID})
}

func (c *Client) NotifyNewProducer(streamID domain.StreamID, producerID, kind string) error {
	return c.send(domain.EventNewProducer, mediaRequest{StreamID: streamID, ProducerID: producerID, Kind: kind})
}

func (c *Client) NotifyProducerClosed(streamID domain.StreamID, producerID string) error {
	return c.send(domain.EventProducerClosed, mediaRequest{StreamID: streamID, ProducerID: producerID})
}

func (c *Client) NotifyConsumerClosed(streamID domain.StreamID, consumerID string) error {
	return c.send(domain.EventConsumerClosed, mediaRequest{StreamID: streamID, ConsumerID: consumerID})
}

func (c *Client) send(t domain.EventType, payload any) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if conn == nil || state != StateAuthenticated {
		return ErrNotConnected
	}
	return c.write(conn, domain.NewEvent(t, payload))
}

func (c *Client) write(conn *websocket.Conn, event domain.Event) error {
	data, err := event.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// dial opens a socket and waits for the authentication reply, all within
// ConnectTimeout.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, domain.ConnectionID, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return nil, "", fmt.Errorf("dial: %w", err)
	}

	auth := domain.NewEvent(domain.EventAuthenticate, map[string]string{"token": c.cfg.Token})
	if err := c.write(conn, auth); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("send authenticate: %w", err)
	}

	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, "", ErrConnectTimeout
			}
			return nil, "", fmt.Errorf("read authentication reply: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type != domain.EventAuthenticated {
			continue
		}
		var reply domain.AuthenticatedPayload
		if err := json.Unmarshal(env.Payload, &reply); err != nil {
			conn.Close()
			return nil, "", fmt.Errorf("decode authentication reply: %w", err)
		}
		if !reply.Success {
			conn.Close()
			return nil, "", fmt.Errorf("%w: %s", ErrAuthRejected, reply.Error)
		}

		_ = conn.SetReadDeadline(time.Time{})
		return conn, reply.ConnectionID, nil
	}
}

// established installs conn, resets the reconnect counter and re-joins
// the remembered rooms. It reports false if the client was closed
// meanwhile. With startRun the caller's run goroutine is counted before
// the lock is released, so Close always waits for it.
func (c *Client) established(conn *websocket.Conn, connID domain.ConnectionID, startRun bool) bool {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		conn.Close()
		return false
	}
	if startRun {
		c.wg.Add(1)
	}
	c.conn = conn
	c.connID = connID
	c.reconnect.Reset()
	rooms := slices.Clone(c.rooms)
	c.mu.Unlock()

	c.transition(StateAuthenticated)
	c.logger.Infow("Connected to signaling server", "connection_id", connID)

	for _, room := range rooms {
		if err := c.write(conn, domain.NewEvent(domain.EventJoinStream, streamRequest{StreamID: room})); err != nil {
			c.logger.Warnw("Failed to re-join stream", "stream_id", room, "error", err)
		}
	}
	return true
}

func (c *Client) transition(s State) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = s
	status := c.statusLocked()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(s, status)
	}
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) run(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		err := c.serve(conn)
		if c.closed() {
			return
		}
		c.logger.Warnw("Connection lost", "error", err)

		if conn = c.reconnectLoop(); conn == nil {
			return
		}
	}
}

// serve reads from conn and runs the heartbeat until the connection is
// lost, a probe goes unanswered, or the client is closed.
func (c *Client) serve(conn *websocket.Conn) error {
	defer conn.Close()

	readErr := make(chan error, 1)
	pong := make(chan struct{}, 1)
	go func() { readErr <- c.readLoop(conn, pong) }()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	var (
		probe   *time.Timer
		timeout <-chan time.Time
	)
	defer func() {
		if probe != nil {
			probe.Stop()
		}
	}()

	for {
		select {
		case <-c.done:
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
			return nil
		case err := <-readErr:
			return err
		case <-pong:
			if probe != nil {
				probe.Stop()
				probe, timeout = nil, nil
			}
		case <-ticker.C:
			if timeout != nil {
				continue
			}
			if err := c.write(conn, domain.NewEvent(domain.EventPing, nil)); err != nil {
				return err
			}
			probe = time.NewTimer(c.cfg.HeartbeatTimeout)
			timeout = probe.C
		case <-timeout:
			return ErrHeartbeatTimeout
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, pong chan<- struct{}) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warnw("Discarding malformed event", "error", err)
			continue
		}
		if env.Type == domain.EventPong {
			select {
			case pong <- struct{}{}:
			default:
			}
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env envelope) {
	c.mu.Lock()
	handlers := slices.Clone(c.handlers[env.Type])
	c.mu.Unlock()
	for _, h := range handlers {
		h(env.Payload)
	}
}

// reconnectLoop returns a freshly authenticated connection, or nil when
// the attempts are used up, the token is refused, or the client closes.
func (c *Client) reconnectLoop() *websocket.Conn {
	c.mu.Lock()
	c.conn, c.connID = nil, ""
	c.mu.Unlock()

	for {
		c.mu.Lock()
		delay, ok := c.reconnect.Next()
		attempt := c.reconnect.Attempts()
		c.mu.Unlock()
		if !ok {
			c.logger.Errorw("Giving up reconnecting", "attempts", attempt)
			c.transition(StateFailed)
			return nil
		}

		c.transition(StateReconnecting)
		c.logger.Infow("Reconnecting", "attempt", attempt, "max", c.cfg.MaxReconnects, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-c.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-c.done:
				cancel()
			case <-ctx.Done():
			}
		}()
		conn, connID, err := c.dial(ctx)
		cancel()

		if err != nil {
			if errors.Is(err, ErrAuthRejected) {
				c.logger.Errorw("Token refused on reconnect", "error", err)
				c.transition(StateFailed)
				return nil
			}
			c.logger.Warnw("Reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}
		if !c.established(conn, connID, false) {
			return nil
		}
		return conn
	}
}
