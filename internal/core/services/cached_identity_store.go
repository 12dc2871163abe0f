package services

import (
	"context"
	"time"

	"streamhub/internal/core/domain"
	"streamhub/internal/core/ports"
	"streamhub/pkg/cache"
)

// CachedIdentityStore keeps successful identity lookups for a short TTL
// so reconnect storms do not hammer the user table. Misses and errors
// are never cached.
type CachedIdentityStore struct {
	base  ports.IdentityStore
	cache *cache.Cache[domain.UserID, domain.Identity]
}

func NewCachedIdentityStore(base ports.IdentityStore, ttl time.Duration) *CachedIdentityStore {
	return &CachedIdentityStore{
		base:  base,
		cache: cache.New[domain.UserID, domain.Identity](ttl),
	}
}

func (s *CachedIdentityStore) FindIdentityByID(ctx context.Context, id domain.UserID) (*domain.Identity, error) {
	identity, err := s.cache.GetOrLoad(ctx, id, func(ctx context.Context) (domain.Identity, error) {
		found, err := s.base.FindIdentityByID(ctx, id)
		if err != nil {
			return domain.Identity{}, err
		}
		return *found, nil
	})
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// Invalidate drops a cached identity, e.g. after a role change.
func (s *CachedIdentityStore) Invalidate(id domain.UserID) {
	s.cache.Delete(id)
}

func (s *CachedIdentityStore) Stop() {
	s.cache.Stop()
}
