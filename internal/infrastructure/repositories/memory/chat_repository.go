package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"streamhub/internal/core/domain"
)

// MemoryChatRepository keeps every stream's messages in append order.
// Ids are sequential across streams, and timestamps never go backwards
// within a stream.
type MemoryChatRepository struct {
	messages map[domain.StreamID][]*domain.ChatMessage
	seq      int64
	mu       sync.RWMutex
	now      func() time.Time
}

func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{
		messages: make(map[domain.StreamID][]*domain.ChatMessage),
		now:      time.Now,
	}
}

func (r *MemoryChatRepository) AppendChatMessage(ctx context.Context, draft domain.ChatDraft) (*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now().UTC()
	log := r.messages[draft.StreamID]
	if n := len(log); n > 0 && ts.Before(log[n-1].Timestamp) {
		ts = log[n-1].Timestamp
	}

	r.seq++
	msg := &domain.ChatMessage{
		ID:        strconv.FormatInt(r.seq, 10),
		StreamID:  draft.StreamID,
		User:      draft.Author.Summary(),
		Message:   draft.Body,
		Kind:      draft.Kind,
		Timestamp: ts,
	}
	r.messages[draft.StreamID] = append(log, msg)

	stored := *msg
	return &stored, nil
}

func (r *MemoryChatRepository) FetchRecentChatMessages(ctx context.Context, streamID domain.StreamID, limit int) ([]*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.messages[streamID]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}

	out := make([]*domain.ChatMessage, len(log))
	for i, msg := range log {
		cp := *msg
		out[i] = &cp
	}
	return out, nil
}
