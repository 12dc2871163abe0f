package ports

import (
	"context"

	"streamhub/internal/core/domain"
)

// IdentityStore resolves a user id taken from a verified token.
// Returns domain.ErrIdentityNotFound when the user does not exist.
type IdentityStore interface {
	FindIdentityByID(ctx context.Context, id domain.UserID) (*domain.Identity, error)
}

// ChatHistoryStore is the append-only per-stream message log.
type ChatHistoryStore interface {
	// AppendChatMessage persists draft and returns it with its id and
	// timestamp assigned.
	AppendChatMessage(ctx context.Context, draft domain.ChatDraft) (*domain.ChatMessage, error)
	// FetchRecentChatMessages returns the newest limit messages of a
	// stream, ordered oldest first. A stream with no messages yields an
	// empty slice.
	FetchRecentChatMessages(ctx context.Context, streamID domain.StreamID, limit int) ([]*domain.ChatMessage, error)
}

// ViewerCountStore persists the viewer count of a stream.
//
// Writes are a best-effort snapshot of the in-memory room size taken at
// the moment of the call. They are not transactional with membership
// changes: under concurrent churn, or after a crash between a membership
// change and its write, the stored value may lag until the next change.
type ViewerCountStore interface {
	SetViewerCount(ctx context.Context, streamID domain.StreamID, count int) error
}

// HealthChecker is implemented by stores that can report liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
