package services

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"streamhub/internal/core/domain"
	"streamhub/internal/core/ports"

	"go.uber.org/zap"
)

const viewerCountStripes = 64

// ViewerCountSyncer publishes a room's viewer count after a membership
// change: it persists the count and broadcasts viewer_count_update to the
// room. The count is read from the registry while holding the room's
// stripe lock, so concurrent changes to one room are written and
// announced in order and the last write carries the latest size.
// Persistence failures are logged and never block the broadcast.
type ViewerCountSyncer struct {
	registry    ports.RoomRegistry
	store       ports.ViewerCountStore
	broadcaster ports.Broadcaster
	metrics     ports.RealtimeMetrics
	logger      *zap.SugaredLogger
	timeout     time.Duration

	stripes [viewerCountStripes]sync.Mutex
}

func NewViewerCountSyncer(
	registry ports.RoomRegistry,
	store ports.ViewerCountStore,
	broadcaster ports.Broadcaster,
	metrics ports.RealtimeMetrics,
	timeout time.Duration,
	logger *zap.SugaredLogger,
) *ViewerCountSyncer {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &ViewerCountSyncer{
		registry:    registry,
		store:       store,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
		timeout:     timeout,
	}
}

// Publish persists and broadcasts the current count of roomID and
// returns it.
func (s *ViewerCountSyncer) Publish(ctx context.Context, roomID domain.StreamID) int {
	mu := &s.stripes[stripeFor(roomID)]
	mu.Lock()
	defer mu.Unlock()

	count := s.registry.Count(roomID)
	s.persist(ctx, roomID, count)
	s.metrics.RoomViewers(roomID, count)

	s.broadcaster.BroadcastToRoom(roomID, domain.NewEvent(domain.EventViewerCountUpdate, domain.ViewerCountPayload{
		StreamID:    roomID,
		ViewerCount: count,
	}))
	return count
}

func (s *ViewerCountSyncer) persist(ctx context.Context, roomID domain.StreamID, count int) {
	if s.store == nil {
		return
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.store.SetViewerCount(ctx, roomID, count); err != nil {
		s.metrics.PersistenceFailed("set_viewer_count")
		s.logger.Warnw("Failed to persist viewer count",
			"stream_id", roomID,
			"viewer_count", count,
			"error", err,
		)
	}
}

func stripeFor(roomID domain.StreamID) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return h.Sum32() % viewerCountStripes
}
