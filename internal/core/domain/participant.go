package domain

import (
	"sort"
	"time"
)

// ConnectionID is assigned by the transport when a socket is accepted.
type ConnectionID string

// ParticipantHandle is one live connection bound to an authenticated
// identity. It is owned by the connection's session; other components
// refer to it only by ConnectionID.
type ParticipantHandle struct {
	ConnectionID  ConnectionID
	Identity      Identity
	ConnectedAt   time.Time
	LastHeartbeat time.Time

	rooms map[StreamID]struct{}
}

func NewParticipantHandle(connID ConnectionID, identity Identity, now time.Time) *ParticipantHandle {
	return &ParticipantHandle{
		ConnectionID:  connID,
		Identity:      identity,
		ConnectedAt:   now,
		LastHeartbeat: now,
		rooms:         make(map[StreamID]struct{}),
	}
}

func (p *ParticipantHandle) JoinRoom(id StreamID)  { p.rooms[id] = struct{}{} }
func (p *ParticipantHandle) LeaveRoom(id StreamID) { delete(p.rooms, id) }
func (p *ParticipantHandle) Touch(now time.Time)   { p.LastHeartbeat = now }
func (p *ParticipantHandle) InAnyRoom() bool       { return len(p.rooms) > 0 }

func (p *ParticipantHandle) InRoom(id StreamID) bool {
	_, ok := p.rooms[id]
	return ok
}

func (p *ParticipantHandle) ClearRooms() {
	clear(p.rooms)
}

// RoomIDs returns joined rooms in stable order.
func (p *ParticipantHandle) RoomIDs() []StreamID {
	ids := make([]StreamID, 0, len(p.rooms))
	for id := range p.rooms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Membership is one connection's entry in a room.
type Membership struct {
	ConnectionID ConnectionID
	JoinedAt     time.Time
}

// RoomCount is a room's membership size right after a mutation.
type RoomCount struct {
	StreamID StreamID
	Count    int
}

// MemberSummary is what privileged callers see when listing a room.
type MemberSummary struct {
	ConnectionID ConnectionID `json:"connectionId"`
	User         UserSummary  `json:"user"`
	JoinedAt     time.Time    `json:"joinedAt"`
}

// ConnectionStats is a point-in-time view of the connection directory.
type ConnectionStats struct {
	TotalConnections   int          `json:"totalConnections"`
	AuthenticatedUsers int          `json:"authenticatedUsers"`
	ActiveStreams      int          `json:"activeStreams"`
	UsersByRole        map[Role]int `json:"usersByRole"`
}

// DeliveryReport counts the outcome of one fan-out.
type DeliveryReport struct {
	Delivered int
	Dropped   int
}
