package signal

import (
	"context"
	"errors"
	"sync"
	"time"

	"streamhub/internal/core/domain"
	"streamhub/internal/core/ports"
	"streamhub/internal/core/services"
	"streamhub/pkg/tracing"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// State is the server-side lifecycle of one connection.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateInRoom
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateInRoom:
		return "in_room"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Supervisor wires the realtime components together and creates one
// Session per accepted connection.
type Supervisor struct {
	auth        ports.Authenticator
	registry    ports.RoomRegistry
	broadcaster ports.Broadcaster
	chat        *services.ChatService
	viewers     *services.ViewerCountSyncer
	presence    *services.PresenceService
	metrics     ports.RealtimeMetrics
	policy      Policy
	logger      *zap.SugaredLogger

	messageRate  rate.Limit
	messageBurst int
	now          func() time.Time
}

type SupervisorDeps struct {
	Auth        ports.Authenticator
	Registry    ports.RoomRegistry
	Broadcaster ports.Broadcaster
	Chat        *services.ChatService
	Viewers     *services.ViewerCountSyncer
	Presence    *services.PresenceService
	Metrics     ports.RealtimeMetrics
	Policy      Policy
	Logger      *zap.SugaredLogger

	// MessagesPerSecond <= 0 disables per-connection rate limiting.
	MessagesPerSecond float64
	MessageBurst      int
}

func NewSupervisor(deps SupervisorDeps) *Supervisor {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = services.NopMetrics{}
	}
	return &Supervisor{
		auth:         deps.Auth,
		registry:     deps.Registry,
		broadcaster:  deps.Broadcaster,
		chat:         deps.Chat,
		viewers:      deps.Viewers,
		presence:     deps.Presence,
		metrics:      metrics,
		policy:       deps.Policy,
		logger:       deps.Logger,
		messageRate:  rate.Limit(deps.MessagesPerSecond),
		messageBurst: deps.MessageBurst,
		now:          time.Now,
	}
}

// Open registers out with the broadcaster and returns its session in
// StateUnauthenticated.
func (sv *Supervisor) Open(out ports.Outbound) *Session {
	sv.broadcaster.Attach(out)
	sv.metrics.ConnectionOpened()

	s := &Session{sv: sv, out: out, state: StateUnauthenticated}
	if sv.messageRate > 0 {
		burst := sv.messageBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(sv.messageRate, burst)
	}
	return s
}

// Session is the state machine of one connection. Handle and Close are
// called from the connection's own loop, so events of one connection are
// processed in arrival order.
type Session struct {
	sv      *Supervisor
	out     ports.Outbound
	limiter *rate.Limiter

	mu        sync.Mutex
	state     State
	handle    *domain.ParticipantHandle
	closeOnce sync.Once
}

func (s *Session) ID() domain.ConnectionID { return s.out.ID() }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.state = state
	}
}

// Handle processes one inbound frame. It returns false when the
// connection must be closed.
func (s *Session) Handle(ctx context.Context, raw []byte) bool {
	if s.State() == StateClosed {
		return false
	}
	start := s.sv.now()

	env, err := decodeEnvelope(raw)
	if err != nil {
		s.sendError(err)
		s.sv.metrics.MessageHandled("invalid", "error", time.Since(start))
		return true
	}

	ctx, span := tracing.TraceWebSocketMessage(ctx, string(env.Type), string(s.ID()))
	defer span.End()

	// heartbeats are never throttled
	if env.Type != domain.EventPing && s.limiter != nil && !s.limiter.Allow() {
		err = domain.ErrRateLimited
	} else {
		err = s.dispatch(ctx, env)
	}

	keepOpen, outcome := true, "ok"
	if err != nil {
		tracing.RecordError(ctx, err)
		keepOpen, outcome = s.fail(env.Type, err)
	}
	if s.handle != nil {
		s.handle.Touch(s.sv.now())
	}
	s.sv.metrics.MessageHandled(env.Type, outcome, time.Since(start))
	return keepOpen
}

func (s *Session) dispatch(ctx context.Context, env Envelope) error {
	switch env.Type {
	case domain.EventAuthenticate:
		return s.handleAuthenticate(ctx, env)
	case domain.EventPing:
		return s.handlePing()
	case domain.EventJoinStream:
		return s.handleJoin(ctx, env)
	case domain.EventLeaveStream:
		return s.handleLeave(ctx, env)
	case domain.EventChatMessage:
		return s.handleChat(ctx, env, domain.MessageKindText)
	case domain.EventSystemMessage:
		return s.handleChat(ctx, env, domain.MessageKindSystem)
	case domain.EventListViewers:
		return s.handleListViewers(env)
	case domain.EventNewProducer, domain.EventProducerClosed, domain.EventConsumerClosed:
		return s.handleMediaRelay(env)
	default:
		return domain.ErrUnknownMessageType
	}
}

// fail reports err to the client and applies the disconnect policy.
func (s *Session) fail(msgType domain.EventType, err error) (bool, string) {
	logger := s.logger()
	switch {
	case errors.Is(err, errAuthClose):
		return false, "auth_failed"
	case domain.IsViolation(err):
		logger.Infow("Refused message", "type", msgType, "state", s.State(), "error", err)
		s.sendError(err)
		if s.sv.policy.DisconnectOnViolation {
			return false, "violation"
		}
		return true, "violation"
	case errors.Is(err, domain.ErrPersistence):
		logger.Errorw("Persistence failure while handling message", "type", msgType, "error", err)
	default:
		logger.Debugw("Rejected message", "type", msgType, "error", err)
	}
	s.sendError(err)
	return true, "error"
}

func (s *Session) handleAuthenticate(ctx context.Context, env Envelope) error {
	s.mu.Lock()
	if s.state != StateUnauthenticated {
		s.mu.Unlock()
		return domain.ErrAlreadyAuthenticated
	}
	s.state = StateAuthenticating
	s.mu.Unlock()

	var payload AuthenticatePayload
	if err := decodePayload(env, &payload); err != nil {
		s.setState(StateUnauthenticated)
		return err
	}

	identity, err := s.sv.auth.Authenticate(ctx, payload.Token)
	if err != nil {
		return s.rejectAuthentication(err)
	}

	handle := domain.NewParticipantHandle(s.ID(), *identity, s.sv.now())
	s.mu.Lock()
	if s.state != StateAuthenticating {
		s.mu.Unlock()
		return nil
	}
	s.handle = handle
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.sv.broadcaster.Bind(s.ID(), *identity)
	s.sv.metrics.ConnectionAuthenticated()

	summary := identity.Summary()
	s.send(domain.NewEvent(domain.EventAuthenticated, domain.AuthenticatedPayload{
		Success:      true,
		User:         &summary,
		ConnectionID: s.ID(),
	}))
	s.logger().Infow("Connection authenticated", "role", identity.Role)
	return nil
}

// rejectAuthentication acknowledges a failed authenticate. The failure
// is answered on the authenticated channel rather than as an error.
func (s *Session) rejectAuthentication(err error) error {
	message := domain.ToAppError(err).Message
	s.send(domain.NewEvent(domain.EventAuthenticated, domain.AuthenticatedPayload{
		Success: false,
		Error:   message,
	}))

	if domain.IsAuthFailure(err) {
		s.logger().Infow("Authentication rejected", "error", err)
	} else {
		s.logger().Errorw("Authentication lookup failed", "error", err)
	}

	if s.sv.policy.CloseOnAuthFailure {
		s.setState(StateClosed)
		return errAuthClose
	}
	s.setState(StateUnauthenticated)
	return nil
}

var errAuthClose = errors.New("authentication failed")

func (s *Session) handlePing() error {
	if _, err := s.requireIdentity(); err != nil {
		return err
	}
	s.send(domain.NewEvent(domain.EventPong, nil))
	return nil
}

func (s *Session) handleJoin(ctx context.Context, env Envelope) error {
	identity, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var payload StreamPayload
	if err := decodePayload(env, &payload); err != nil {
		return err
	}
	roomID := payload.StreamID

	if s.handle.InRoom(roomID) {
		s.send(domain.NewEvent(domain.EventViewerCountUpdate, domain.ViewerCountPayload{
			StreamID:    roomID,
			ViewerCount: s.sv.registry.Count(roomID),
		}))
		return nil
	}

	// Membership comes first so a message sent while history is loading
	// reaches this connection live. Clients dedupe by message id.
	s.sv.registry.Join(roomID, s.ID())
	s.handle.JoinRoom(roomID)

	history, err := s.sv.chat.History(ctx, roomID)
	if err != nil {
		// nothing was announced yet, so undoing the join restores membership
		s.sv.registry.Leave(roomID, s.ID())
		s.handle.LeaveRoom(roomID)
		return err
	}
	s.setState(StateInRoom)

	s.send(domain.NewEvent(domain.EventChatHistory, history))
	count := s.sv.viewers.Publish(ctx, roomID)
	s.sv.broadcaster.BroadcastToRoom(roomID, s.presenceEvent(domain.EventUserJoined, roomID, identity), s.ID())

	s.logger().Infow("Joined stream", "stream_id", roomID, "viewer_count", count)
	return nil
}

func (s *Session) handleLeave(ctx context.Context, env Envelope) error {
	identity, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var payload StreamPayload
	if err := decodePayload(env, &payload); err != nil {
		return err
	}
	roomID := payload.StreamID
	if !s.handle.InRoom(roomID) {
		return domain.ErrNotInRoom
	}

	s.sv.registry.Leave(roomID, s.ID())
	s.handle.LeaveRoom(roomID)
	if !s.handle.InAnyRoom() {
		s.setState(StateAuthenticated)
	}

	count := s.sv.viewers.Publish(ctx, roomID)
	s.sv.broadcaster.BroadcastToRoom(roomID, s.presenceEvent(domain.EventUserLeft, roomID, identity), s.ID())

	s.logger().Infow("Left stream", "stream_id", roomID, "viewer_count", count)
	return nil
}

// handleChat persists a message and only then fans it out to the whole
// room, sender included. System messages need the admin role but not
// room membership.
func (s *Session) handleChat(ctx context.Context, env Envelope, kind domain.MessageKind) error {
	identity, err := s.requireIdentity()
	if err != nil {
		return err
	}
	if kind == domain.MessageKindSystem && identity.Role != domain.RoleAdmin {
		return domain.ErrInsufficientRole
	}

	var payload ChatPayload
	if err := decodePayload(env, &payload); err != nil {
		return err
	}
	if kind == domain.MessageKindText && !s.handle.InRoom(payload.StreamID) {
		return domain.ErrNotInRoom
	}

	msg, err := s.sv.chat.Send(ctx, identity, payload.StreamID, payload.Message, kind)
	if err != nil {
		return err
	}

	report := s.sv.broadcaster.BroadcastToRoom(payload.StreamID, domain.NewEvent(domain.EventNewChatMessage, msg))
	s.logger().Debugw("Chat message delivered",
		"stream_id", payload.StreamID,
		"message_id", msg.ID,
		"kind", kind,
		"delivered", report.Delivered,
	)
	return nil
}

func (s *Session) handleListViewers(env Envelope) error {
	identity, err := s.requireIdentity()
	if err != nil {
		return err
	}
	if !identity.Role.IsPrivileged() {
		return domain.ErrInsufficientRole
	}
	var payload StreamPayload
	if err := decodePayload(env, &payload); err != nil {
		return err
	}

	viewers := s.sv.presence.ListRoomMembers(payload.StreamID)
	s.send(domain.NewEvent(domain.EventViewerList, domain.ViewerListPayload{
		StreamID:    payload.StreamID,
		ViewerCount: len(viewers),
		Viewers:     viewers,
	}))
	return nil
}

// handleMediaRelay passes media-side announcements to the rest of the
// room. Nothing is persisted.
func (s *Session) handleMediaRelay(env Envelope) error {
	identity, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var payload MediaPayload
	if err := decodePayload(env, &payload); err != nil {
		return err
	}
	missingID := payload.ProducerID == ""
	if env.Type == domain.EventConsumerClosed {
		missingID = payload.ConsumerID == ""
	}
	if missingID {
		return domain.ErrInvalidPayload
	}

	s.sv.broadcaster.BroadcastToRoom(payload.StreamID, domain.NewEvent(env.Type, domain.MediaRelayPayload{
		StreamID:   payload.StreamID,
		ProducerID: payload.ProducerID,
		ConsumerID: payload.ConsumerID,
		Kind:       payload.Kind,
		From:       identity.UserID,
	}), s.ID())
	return nil
}

// Close tears the session down: the connection leaves every room, each
// affected room gets one count update and one user_left, and the
// connection is removed from the directory. Safe to call more than once.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		handle := s.handle
		s.state = StateClosed
		s.mu.Unlock()

		if handle != nil {
			for _, rc := range s.sv.registry.RemoveConnectionEverywhere(s.ID()) {
				s.sv.viewers.Publish(ctx, rc.StreamID)
				s.sv.broadcaster.BroadcastToRoom(rc.StreamID, s.presenceEvent(domain.EventUserLeft, rc.StreamID, handle.Identity))
			}
			handle.ClearRooms()
		}

		s.sv.broadcaster.Detach(s.ID())
		s.sv.metrics.ConnectionClosed(handle != nil)
		s.out.Close()
		s.logger().Infow("Connection closed", "authenticated", handle != nil)
	})
}

func (s *Session) requireIdentity() (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return domain.Identity{}, domain.ErrNotAuthenticated
	}
	return s.handle.Identity, nil
}

func (s *Session) presenceEvent(t domain.EventType, roomID domain.StreamID, identity domain.Identity) domain.Event {
	return domain.NewEvent(t, domain.PresencePayload{
		StreamID:  roomID,
		User:      identity.Summary(),
		Timestamp: s.sv.now().UTC(),
	})
}

func (s *Session) send(event domain.Event) {
	s.sv.broadcaster.SendTo(s.ID(), event)
}

func (s *Session) sendError(err error) {
	s.send(domain.NewEvent(domain.EventError, domain.ErrorPayload{Message: domain.ToAppError(err).Message}))
}

func (s *Session) logger() *zap.SugaredLogger {
	fields := []interface{}{"connection_id", s.ID()}
	if s.handle != nil {
		fields = append(fields, "user_id", s.handle.Identity.UserID)
	}
	return s.sv.logger.With(fields...)
}
