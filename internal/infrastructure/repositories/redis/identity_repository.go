package redis

import (
	"context"
	"fmt"

	"streamhub/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

// RedisIdentityRepository reads accounts from hashes at
// streamhub:user:{id} with display_name, email and role fields.
type RedisIdentityRepository struct {
	client *redis.Client
}

func NewRedisIdentityRepository(client *redis.Client) *RedisIdentityRepository {
	return &RedisIdentityRepository{client: client}
}

func (r *RedisIdentityRepository) FindIdentityByID(ctx context.Context, id domain.UserID) (*domain.Identity, error) {
	fields, err := r.client.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user from Redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrIdentityNotFound
	}
	return &domain.Identity{
		UserID:      id,
		DisplayName: fields["display_name"],
		Email:       fields["email"],
		Role:        domain.Role(fields["role"]),
	}, nil
}

func (r *RedisIdentityRepository) PutIdentity(ctx context.Context, identity domain.Identity) error {
	err := r.client.HSet(ctx, userKey(identity.UserID),
		"display_name", identity.DisplayName,
		"email", identity.Email,
		"role", string(identity.Role),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set user in Redis: %w", err)
	}
	return nil
}
