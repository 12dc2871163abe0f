package redis

import (
	"context"
	"errors"
	"fmt"

	"streamhub/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

// RedisViewerCountRepository stores every stream's count in one hash.
type RedisViewerCountRepository struct {
	client *redis.Client
}

func NewRedisViewerCountRepository(client *redis.Client) *RedisViewerCountRepository {
	return &RedisViewerCountRepository{client: client}
}

func (r *RedisViewerCountRepository) SetViewerCount(ctx context.Context, streamID domain.StreamID, count int) error {
	if err := r.client.HSet(ctx, viewerCountsKey, string(streamID), count).Err(); err != nil {
		return fmt.Errorf("failed to set viewer count in Redis: %w", err)
	}
	return nil
}

func (r *RedisViewerCountRepository) ViewerCount(ctx context.Context, streamID domain.StreamID) (int, error) {
	count, err := r.client.HGet(ctx, viewerCountsKey, string(streamID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get viewer count from Redis: %w", err)
	}
	return count, nil
}
