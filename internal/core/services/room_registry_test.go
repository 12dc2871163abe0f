package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"streamhub/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomRegistry_JoinIsIdempotent(t *testing.T) {
	r := NewRoomRegistry()

	count, added := r.Join("7", "a")
	assert.Equal(t, 1, count)
	assert.True(t, added)

	count, added = r.Join("7", "a")
	assert.Equal(t, 1, count)
	assert.False(t, added)

	count, _ = r.Join("7", "b")
	assert.Equal(t, 2, count)
}

func TestRoomRegistry_LeaveIsIdempotent(t *testing.T) {
	r := NewRoomRegistry()
	r.Join("7", "a")
	r.Join("7", "b")

	count, removed := r.Leave("7", "a")
	assert.Equal(t, 1, count)
	assert.True(t, removed)

	count, removed = r.Leave("7", "a")
	assert.Equal(t, 1, count)
	assert.False(t, removed)

	count, removed = r.Leave("404", "a")
	assert.Equal(t, 0, count)
	assert.False(t, removed)
}

func TestRoomRegistry_CountMatchesDistinctMembers(t *testing.T) {
	r := NewRoomRegistry()
	ops := []struct {
		join bool
		conn domain.ConnectionID
	}{
		{true, "a"}, {true, "b"}, {true, "a"}, {false, "c"},
		{true, "c"}, {false, "b"}, {false, "b"}, {true, "b"}, {false, "a"},
	}

	live := map[domain.ConnectionID]bool{}
	for _, op := range ops {
		var got int
		if op.join {
			got, _ = r.Join("7", op.conn)
			live[op.conn] = true
		} else {
			got, _ = r.Leave("7", op.conn)
			delete(live, op.conn)
		}
		assert.Equal(t, len(live), got)
		assert.Equal(t, len(live), r.Count("7"))
	}
}

func TestRoomRegistry_EmptyRoomsAreEvicted(t *testing.T) {
	r := NewRoomRegistry()
	r.Join("7", "a")
	r.Join("8", "a")
	require.Equal(t, 2, r.ActiveRooms())

	r.Leave("7", "a")
	assert.Equal(t, 1, r.ActiveRooms())
	assert.Equal(t, 0, r.Count("7"))
	assert.Equal(t, []domain.StreamID{"8"}, r.RoomsOf("a"))
}

func TestRoomRegistry_RemoveConnectionEverywhere(t *testing.T) {
	r := NewRoomRegistry()
	r.Join("1", "a")
	r.Join("2", "a")
	r.Join("2", "b")
	r.Join("3", "b")

	counts := r.RemoveConnectionEverywhere("a")
	assert.Equal(t, []domain.RoomCount{
		{StreamID: "1", Count: 0},
		{StreamID: "2", Count: 1},
	}, counts)

	assert.Empty(t, r.RoomsOf("a"))
	assert.Equal(t, 1, r.Count("3"))
	assert.Nil(t, r.RemoveConnectionEverywhere("a"))
	assert.Nil(t, r.RemoveConnectionEverywhere("unknown"))
}

func TestRoomRegistry_MembersOrderedByJoinTime(t *testing.T) {
	r := NewRoomRegistry()
	base := time.Unix(1_700_000_000, 0)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	r.Join("7", "c")
	r.Join("7", "a")
	r.Join("7", "b")

	members := r.Members("7")
	require.Len(t, members, 3)
	assert.Equal(t, domain.ConnectionID("c"), members[0].ConnectionID)
	assert.Equal(t, domain.ConnectionID("a"), members[1].ConnectionID)
	assert.Equal(t, domain.ConnectionID("b"), members[2].ConnectionID)
	assert.ElementsMatch(t, []domain.ConnectionID{"a", "b", "c"}, r.MemberIDs("7"))
}

func TestRoomRegistry_ConcurrentChurn(t *testing.T) {
	r := NewRoomRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := domain.ConnectionID(fmt.Sprintf("c%d", i))
			r.Join("7", conn)
			r.Join("7", conn)
			if i%2 == 0 {
				r.Leave("7", conn)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, r.Count("7"))
	assert.Len(t, r.MemberIDs("7"), 25)
}
