package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"streamhub/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

// DefaultChatRetention is how many messages a stream's list keeps.
const DefaultChatRetention = 1000

// RedisChatRepository keeps each stream's chat as a capped list of JSON
// messages. Ids come from a shared counter and timestamps from the server
// clock, so every process sharing the instance agrees on both.
type RedisChatRepository struct {
	client    *redis.Client
	retention int64
}

func NewRedisChatRepository(client *redis.Client, retention int) *RedisChatRepository {
	if retention <= 0 {
		retention = DefaultChatRetention
	}
	return &RedisChatRepository{client: client, retention: int64(retention)}
}

func (r *RedisChatRepository) AppendChatMessage(ctx context.Context, draft domain.ChatDraft) (*domain.ChatMessage, error) {
	now, err := r.client.Time(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read Redis time: %w", err)
	}
	seq, err := r.client.Incr(ctx, chatSeqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate chat message id: %w", err)
	}

	msg := &domain.ChatMessage{
		ID:        strconv.FormatInt(seq, 10),
		StreamID:  draft.StreamID,
		User:      draft.Author.Summary(),
		Message:   draft.Body,
		Kind:      draft.Kind,
		Timestamp: now.UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat message: %w", err)
	}

	key := chatKey(draft.StreamID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -r.retention, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to push chat message to Redis: %w", err)
	}
	return msg, nil
}

// FetchRecentChatMessages returns the tail of the list oldest first.
// Appends racing across processes may land slightly out of clock order,
// so the tail is re-sorted by timestamp.
func (r *RedisChatRepository) FetchRecentChatMessages(ctx context.Context, streamID domain.StreamID, limit int) ([]*domain.ChatMessage, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := r.client.LRange(ctx, chatKey(streamID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read chat messages from Redis: %w", err)
	}

	messages := make([]*domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat message: %w", err)
		}
		messages = append(messages, &msg)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}
