package ports

import (
	"context"
	"time"

	"streamhub/internal/core/domain"
)

// Authenticator turns a presented credential into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Identity, error)
}

// RoomRegistry tracks which connections are in which stream rooms.
// Every mutation is applied before it returns, so a count it reports is
// the live membership size at that instant.
type RoomRegistry interface {
	// Join is idempotent. added is false when the connection was already
	// a member.
	Join(roomID domain.StreamID, connID domain.ConnectionID) (count int, added bool)
	// Leave is idempotent. removed is false when the connection was not a
	// member; count is then the unchanged size.
	Leave(roomID domain.StreamID, connID domain.ConnectionID) (count int, removed bool)
	Count(roomID domain.StreamID) int
	Members(roomID domain.StreamID) []domain.Membership
	MemberIDs(roomID domain.StreamID) []domain.ConnectionID
	// RemoveConnectionEverywhere drops connID from every room it is in and
	// returns one entry per affected room.
	RemoveConnectionEverywhere(connID domain.ConnectionID) []domain.RoomCount
	RoomsOf(connID domain.ConnectionID) []domain.StreamID
	ActiveRooms() int
}

// Outbound is the write side of one connection. Enqueue never blocks;
// it returns false when the frame was dropped.
type Outbound interface {
	ID() domain.ConnectionID
	Enqueue(frame []byte) bool
	Close()
}

// Broadcaster delivers events to connections. Delivery is best-effort:
// a frame for a dead or saturated connection is dropped and counted.
type Broadcaster interface {
	Attach(out Outbound)
	Bind(connID domain.ConnectionID, identity domain.Identity)
	Detach(connID domain.ConnectionID)
	Identity(connID domain.ConnectionID) (domain.Identity, bool)

	SendTo(connID domain.ConnectionID, event domain.Event) bool
	BroadcastToRoom(roomID domain.StreamID, event domain.Event, exclude ...domain.ConnectionID) domain.DeliveryReport
	BroadcastByRole(role domain.Role, event domain.Event) domain.DeliveryReport
	BroadcastAll(event domain.Event) domain.DeliveryReport

	Stats() domain.ConnectionStats
}

// RealtimeMetrics is the instrumentation surface of the realtime layer.
type RealtimeMetrics interface {
	ConnectionOpened()
	ConnectionClosed(authenticated bool)
	ConnectionAuthenticated()
	RoomViewers(roomID domain.StreamID, count int)
	MessageHandled(msgType domain.EventType, outcome string, duration time.Duration)
	ChatMessagePersisted(kind domain.MessageKind)
	FramesDropped(n int)
	PersistenceFailed(operation string)
}
