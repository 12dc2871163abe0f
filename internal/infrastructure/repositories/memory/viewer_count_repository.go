package memory

import (
	"context"
	"sync"

	"streamhub/internal/core/domain"
)

type MemoryViewerCountRepository struct {
	counts map[domain.StreamID]int
	mu     sync.RWMutex
}

func NewMemoryViewerCountRepository() *MemoryViewerCountRepository {
	return &MemoryViewerCountRepository{
		counts: make(map[domain.StreamID]int),
	}
}

func (r *MemoryViewerCountRepository) SetViewerCount(ctx context.Context, streamID domain.StreamID, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[streamID] = count
	return nil
}

// ViewerCount returns the last stored count of a stream.
func (r *MemoryViewerCountRepository) ViewerCount(streamID domain.StreamID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[streamID]
}
