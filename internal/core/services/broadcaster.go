package services

import (
	"sync"

	"streamhub/internal/core/domain"
	"streamhub/internal/core/ports"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

type directoryEntry struct {
	out      ports.Outbound
	identity *domain.Identity
}

// Broadcaster owns the connection directory (connection id -> outbound
// queue and bound identity) and fans events out over it. Each event is
// encoded once per call; delivery never blocks on a slow connection.
type Broadcaster struct {
	registry ports.RoomRegistry
	metrics  ports.RealtimeMetrics
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	entries map[domain.ConnectionID]*directoryEntry
}

func NewBroadcaster(registry ports.RoomRegistry, metrics ports.RealtimeMetrics, logger *zap.SugaredLogger) *Broadcaster {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Broadcaster{
		registry: registry,
		metrics:  metrics,
		logger:   logger,
		entries:  make(map[domain.ConnectionID]*directoryEntry),
	}
}

// Attach registers an unauthenticated connection so it can receive
// direct replies.
func (b *Broadcaster) Attach(out ports.Outbound) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[out.ID()] = &directoryEntry{out: out}
}

// Bind records the identity a connection authenticated as.
func (b *Broadcaster) Bind(connID domain.ConnectionID, identity domain.Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry, ok := b.entries[connID]; ok {
		entry.identity = &identity
	}
}

func (b *Broadcaster) Detach(connID domain.ConnectionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, connID)
}

func (b *Broadcaster) Identity(connID domain.ConnectionID) (domain.Identity, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[connID]
	if !ok || entry.identity == nil {
		return domain.Identity{}, false
	}
	return *entry.identity, true
}

func (b *Broadcaster) SendTo(connID domain.ConnectionID, event domain.Event) bool {
	frame, ok := b.encode(event)
	if !ok {
		return false
	}

	b.mu.RLock()
	entry, found := b.entries[connID]
	b.mu.RUnlock()
	if !found {
		return false
	}
	if !entry.out.Enqueue(frame) {
		b.metrics.FramesDropped(1)
		return false
	}
	return true
}

// BroadcastToRoom delivers event to every current member of roomID
// except the excluded connections.
func (b *Broadcaster) BroadcastToRoom(roomID domain.StreamID, event domain.Event, exclude ...domain.ConnectionID) domain.DeliveryReport {
	members := lo.Keyify(lo.Without(b.registry.MemberIDs(roomID), exclude...))
	if len(members) == 0 {
		return domain.DeliveryReport{}
	}
	return b.deliver(event, b.targets(func(connID domain.ConnectionID, _ *directoryEntry) bool {
		_, ok := members[connID]
		return ok
	}))
}

// BroadcastByRole delivers event to every authenticated connection whose
// identity has role, across all rooms.
func (b *Broadcaster) BroadcastByRole(role domain.Role, event domain.Event) domain.DeliveryReport {
	return b.deliver(event, b.targets(func(_ domain.ConnectionID, entry *directoryEntry) bool {
		return entry.identity != nil && entry.identity.Role == role
	}))
}

// BroadcastAll delivers event to every authenticated connection.
func (b *Broadcaster) BroadcastAll(event domain.Event) domain.DeliveryReport {
	return b.deliver(event, b.targets(func(_ domain.ConnectionID, entry *directoryEntry) bool {
		return entry.identity != nil
	}))
}

func (b *Broadcaster) Stats() domain.ConnectionStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := domain.ConnectionStats{
		TotalConnections: len(b.entries),
		ActiveStreams:    b.registry.ActiveRooms(),
		UsersByRole:      make(map[domain.Role]int),
	}
	users := make(map[domain.UserID]struct{})
	for _, entry := range b.entries {
		if entry.identity == nil {
			continue
		}
		stats.UsersByRole[entry.identity.Role]++
		users[entry.identity.UserID] = struct{}{}
	}
	stats.AuthenticatedUsers = len(users)
	return stats
}

func (b *Broadcaster) targets(match func(domain.ConnectionID, *directoryEntry) bool) []ports.Outbound {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ports.Outbound, 0, len(b.entries))
	for connID, entry := range b.entries {
		if match(connID, entry) {
			out = append(out, entry.out)
		}
	}
	return out
}

func (b *Broadcaster) deliver(event domain.Event, targets []ports.Outbound) domain.DeliveryReport {
	var report domain.DeliveryReport
	if len(targets) == 0 {
		return report
	}
	frame, ok := b.encode(event)
	if !ok {
		return report
	}

	for _, out := range targets {
		if out.Enqueue(frame) {
			report.Delivered++
		} else {
			report.Dropped++
		}
	}
	if report.Dropped > 0 {
		b.metrics.FramesDropped(report.Dropped)
		b.logger.Debugw("Dropped frames during fan-out",
			"event", event.Type,
			"dropped", report.Dropped,
			"delivered", report.Delivered,
		)
	}
	return report
}

func (b *Broadcaster) encode(event domain.Event) ([]byte, bool) {
	frame, err := event.Encode()
	if err != nil {
		b.logger.Errorw("Failed to encode event", "event", event.Type, "error", err)
		return nil, false
	}
	return frame, true
}
