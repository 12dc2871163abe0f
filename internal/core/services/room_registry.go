package services

import (
	"sort"
	"sync"
	"time"

	"streamhub/internal/core/domain"

	"github.com/samber/lo"
)

// RoomRegistry is the in-process ports.RoomRegistry. Rooms are sets of
// connection ids; a room's viewer count is always the size of its set.
// Empty rooms are evicted.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[domain.StreamID]map[domain.ConnectionID]time.Time
	// reverse index: connection -> rooms it is in
	byConn map[domain.ConnectionID]map[domain.StreamID]struct{}
	now    func() time.Time
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[domain.StreamID]map[domain.ConnectionID]time.Time),
		byConn: make(map[domain.ConnectionID]map[domain.StreamID]struct{}),
		now:    time.Now,
	}
}

func (r *RoomRegistry) Join(roomID domain.StreamID, connID domain.ConnectionID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[domain.ConnectionID]time.Time)
		r.rooms[roomID] = members
	}
	if _, exists := members[connID]; exists {
		return len(members), false
	}
	members[connID] = r.now()

	joined, ok := r.byConn[connID]
	if !ok {
		joined = make(map[domain.StreamID]struct{})
		r.byConn[connID] = joined
	}
	joined[roomID] = struct{}{}

	return len(members), true
}

func (r *RoomRegistry) Leave(roomID domain.StreamID, connID domain.ConnectionID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return 0, false
	}
	if _, exists := members[connID]; !exists {
		return len(members), false
	}
	r.removeLocked(roomID, connID)
	return len(r.rooms[roomID]), true
}

func (r *RoomRegistry) RemoveConnectionEverywhere(connID domain.ConnectionID) []domain.RoomCount {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.byConn[connID]
	if len(joined) == 0 {
		return nil
	}

	roomIDs := sortedRoomIDs(joined)
	counts := make([]domain.RoomCount, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		r.removeLocked(roomID, connID)
		counts = append(counts, domain.RoomCount{StreamID: roomID, Count: len(r.rooms[roomID])})
	}
	return counts
}

// removeLocked must be called with mu held for writing.
func (r *RoomRegistry) removeLocked(roomID domain.StreamID, connID domain.ConnectionID) {
	if members, ok := r.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if joined, ok := r.byConn[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.byConn, connID)
		}
	}
}

func (r *RoomRegistry) Count(roomID domain.StreamID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Members returns the room's memberships ordered by join time.
func (r *RoomRegistry) Members(roomID domain.StreamID) []domain.Membership {
	r.mu.RLock()
	members := lo.MapToSlice(r.rooms[roomID], func(connID domain.ConnectionID, joinedAt time.Time) domain.Membership {
		return domain.Membership{ConnectionID: connID, JoinedAt: joinedAt}
	})
	r.mu.RUnlock()

	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].ConnectionID < members[j].ConnectionID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members
}

func (r *RoomRegistry) MemberIDs(roomID domain.StreamID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.rooms[roomID])
}

func (r *RoomRegistry) RoomsOf(connID domain.ConnectionID) []domain.StreamID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedRoomIDs(r.byConn[connID])
}

func (r *RoomRegistry) ActiveRooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func sortedRoomIDs(set map[domain.StreamID]struct{}) []domain.StreamID {
	ids := lo.Keys(set)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
