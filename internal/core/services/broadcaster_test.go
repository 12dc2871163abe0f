package services

import (
	"testing"

	"streamhub/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBroadcaster(t *testing.T) (*Broadcaster, *RoomRegistry, *countingMetrics) {
	t.Helper()
	registry := NewRoomRegistry()
	metrics := &countingMetrics{}
	return NewBroadcaster(registry, metrics, testLogger), registry, metrics
}

func attach(b *Broadcaster, id domain.ConnectionID, role domain.Role) *fakeOutbound {
	out := newFakeOutbound(id)
	b.Attach(out)
	if role != "" {
		b.Bind(id, domain.Identity{UserID: domain.UserID("u-" + string(id)), Role: role})
	}
	return out
}

func TestBroadcaster_RoomExcludesActorOnly(t *testing.T) {
	b, registry, _ := setupBroadcaster(t)
	a := attach(b, "a", domain.RoleViewer)
	bb := attach(b, "b", domain.RoleViewer)
	outsider := attach(b, "c", domain.RoleViewer)
	registry.Join("7", "a")
	registry.Join("7", "b")

	report := b.BroadcastToRoom("7", domain.NewEvent(domain.EventUserJoined, nil), "b")
	assert.Equal(t, domain.DeliveryReport{Delivered: 1}, report)
	assert.Equal(t, []domain.EventType{domain.EventUserJoined}, a.types())
	assert.Empty(t, bb.types())
	assert.Empty(t, outsider.types())

	report = b.BroadcastToRoom("7", domain.NewEvent(domain.EventViewerCountUpdate, nil))
	assert.Equal(t, 2, report.Delivered)
}

func TestBroadcaster_DropsAreCountedNotFatal(t *testing.T) {
	b, registry, metrics := setupBroadcaster(t)
	healthy := attach(b, "a", domain.RoleViewer)
	stuck := attach(b, "b", domain.RoleViewer)
	stuck.full = true
	registry.Join("7", "a")
	registry.Join("7", "b")

	report := b.BroadcastToRoom("7", domain.NewEvent(domain.EventNewChatMessage, nil))
	assert.Equal(t, domain.DeliveryReport{Delivered: 1, Dropped: 1}, report)
	assert.Len(t, healthy.types(), 1)
	assert.Equal(t, 1, metrics.dropped)
}

func TestBroadcaster_SendTo(t *testing.T) {
	b, _, _ := setupBroadcaster(t)
	a := attach(b, "a", "")

	assert.True(t, b.SendTo("a", domain.NewEvent(domain.EventPong, nil)))
	assert.False(t, b.SendTo("missing", domain.NewEvent(domain.EventPong, nil)))
	assert.Equal(t, []domain.EventType{domain.EventPong}, a.types())
}

func TestBroadcaster_ByRoleAndAll(t *testing.T) {
	b, _, _ := setupBroadcaster(t)
	admin := attach(b, "a", domain.RoleAdmin)
	viewer := attach(b, "v", domain.RoleViewer)
	anon := attach(b, "x", "")

	report := b.BroadcastByRole(domain.RoleAdmin, domain.NewEvent(domain.EventNotification, nil))
	assert.Equal(t, 1, report.Delivered)
	assert.Len(t, admin.types(), 1)
	assert.Empty(t, viewer.types())

	report = b.BroadcastAll(domain.NewEvent(domain.EventNotification, nil))
	assert.Equal(t, 2, report.Delivered)
	assert.Empty(t, anon.types())
}

func TestBroadcaster_DetachAndStats(t *testing.T) {
	b, registry, _ := setupBroadcaster(t)
	attach(b, "a", domain.RoleAdmin)
	attach(b, "b", domain.RoleViewer)
	attach(b, "c", "")
	registry.Join("7", "a")

	stats := b.Stats()
	assert.Equal(t, 3, stats.TotalConnections)
	assert.Equal(t, 2, stats.AuthenticatedUsers)
	assert.Equal(t, 1, stats.ActiveStreams)
	assert.Equal(t, map[domain.Role]int{domain.RoleAdmin: 1, domain.RoleViewer: 1}, stats.UsersByRole)

	b.Detach("a")
	_, ok := b.Identity("a")
	assert.False(t, ok)
	identity, ok := b.Identity("b")
	require.True(t, ok)
	assert.Equal(t, domain.RoleViewer, identity.Role)
}
