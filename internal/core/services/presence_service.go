package services

import (
	"time"

	"streamhub/internal/core/domain"
	"streamhub/internal/core/ports"

	"github.com/samber/lo"
)

// PresenceService is the read and notify surface of the realtime layer
// used outside connection handling: HTTP endpoints and the event bus.
type PresenceService struct {
	registry    ports.RoomRegistry
	broadcaster ports.Broadcaster
	now         func() time.Time
}

func NewPresenceService(registry ports.RoomRegistry, broadcaster ports.Broadcaster) *PresenceService {
	return &PresenceService{
		registry:    registry,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// ListRoomMembers returns the current members of streamID in join order.
// Connections that vanished between the two lookups are skipped.
func (s *PresenceService) ListRoomMembers(streamID domain.StreamID) []domain.MemberSummary {
	return lo.FilterMap(s.registry.Members(streamID), func(m domain.Membership, _ int) (domain.MemberSummary, bool) {
		identity, ok := s.broadcaster.Identity(m.ConnectionID)
		if !ok {
			return domain.MemberSummary{}, false
		}
		return domain.MemberSummary{
			ConnectionID: m.ConnectionID,
			User:         identity.Summary(),
			JoinedAt:     m.JoinedAt,
		}, true
	})
}

func (s *PresenceService) Stats() domain.ConnectionStats {
	return s.broadcaster.Stats()
}

// Notify sends a notification to every authenticated connection, or only
// to those with role when role is non-nil.
func (s *PresenceService) Notify(role *domain.Role, message, kind string) domain.DeliveryReport {
	if kind == "" {
		kind = "info"
	}
	event := domain.NewEvent(domain.EventNotification, domain.NotificationPayload{
		Message:   message,
		Type:      kind,
		Timestamp: s.now().UTC(),
	})
	if role != nil {
		return s.broadcaster.BroadcastByRole(*role, event)
	}
	return s.broadcaster.BroadcastAll(event)
}
