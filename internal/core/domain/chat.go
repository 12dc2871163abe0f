package domain

import "time"

type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindSystem MessageKind = "system"
)

// ChatDraft is a validated message that has not been persisted yet.
type ChatDraft struct {
	StreamID StreamID
	Author   Identity
	Body     string
	Kind     MessageKind
}

// ChatMessage is a persisted message. ID and Timestamp come from the store.
type ChatMessage struct {
	ID        string      `json:"id"`
	StreamID  StreamID    `json:"streamId"`
	User      UserSummary `json:"user"`
	Message   string      `json:"message"`
	Kind      MessageKind `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}
