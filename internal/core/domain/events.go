package domain

import (
	"encoding/json"
	"time"
)

type EventType string

// Inbound (client -> server).
const (
	EventAuthenticate   EventType = "authenticate"
	EventPing           EventType = "ping"
	EventJoinStream     EventType = "join_stream"
	EventLeaveStream    EventType = "leave_stream"
	EventChatMessage    EventType = "chat_message"
	EventSystemMessage  EventType = "system_message"
	EventListViewers    EventType = "list_viewers"
	EventNewProducer    EventType = "new_producer"
	EventProducerClosed EventType = "producer_closed"
	EventConsumerClosed EventType = "consumer_closed"
)

// Outbound (server -> client). Media relays reuse the inbound names.
const (
	EventAuthenticated     EventType = "authenticated"
	EventPong              EventType = "pong"
	EventChatHistory       EventType = "chat_history"
	EventNewChatMessage    EventType = "new_chat_message"
	EventUserJoined        EventType = "user_joined"
	EventUserLeft          EventType = "user_left"
	EventViewerCountUpdate EventType = "viewer_count_update"
	EventNotification      EventType = "notification"
	EventViewerList        EventType = "viewer_list"
	EventError             EventType = "error"
)

// IsMediaRelay reports whether t is passed through to the room untouched.
func (t EventType) IsMediaRelay() bool {
	switch t {
	case EventNewProducer, EventProducerClosed, EventConsumerClosed:
		return true
	}
	return false
}

// Event is the wire envelope for every message in both directions.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

func NewEvent(t EventType, payload any) Event {
	if payload == nil {
		payload = struct{}{}
	}
	return Event{Type: t, Payload: payload}
}

// Encode serializes the event once so a fan-out can share the bytes.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

type AuthenticatedPayload struct {
	Success      bool         `json:"success"`
	User         *UserSummary `json:"user,omitempty"`
	ConnectionID ConnectionID `json:"connectionId,omitempty"`
	Error        string       `json:"error,omitempty"`
}

type ViewerCountPayload struct {
	StreamID    StreamID `json:"streamId"`
	ViewerCount int      `json:"viewerCount"`
}

type PresencePayload struct {
	StreamID  StreamID    `json:"streamId"`
	User      UserSummary `json:"user"`
	Timestamp time.Time   `json:"timestamp"`
}

type NotificationPayload struct {
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type ViewerListPayload struct {
	StreamID    StreamID        `json:"streamId"`
	ViewerCount int             `json:"viewerCount"`
	Viewers     []MemberSummary `json:"viewers"`
}

// MediaRelayPayload carries media-side ids only; the signaling layer
// never interprets them.
type MediaRelayPayload struct {
	StreamID   StreamID `json:"streamId"`
	ProducerID string   `json:"producerId,omitempty"`
	ConsumerID string   `json:"consumerId,omitempty"`
	Kind       string   `json:"kind,omitempty"`
	From       UserID   `json:"from"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
