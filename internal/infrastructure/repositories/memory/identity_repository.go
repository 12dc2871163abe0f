package memory

import (
	"context"
	"sync"

	"streamhub/internal/core/domain"
)

type MemoryIdentityRepository struct {
	identities map[domain.UserID]domain.Identity
	mu         sync.RWMutex
}

func NewMemoryIdentityRepository(seed ...domain.Identity) *MemoryIdentityRepository {
	r := &MemoryIdentityRepository{
		identities: make(map[domain.UserID]domain.Identity, len(seed)),
	}
	for _, identity := range seed {
		r.identities[identity.UserID] = identity
	}
	return r
}

func (r *MemoryIdentityRepository) FindIdentityByID(ctx context.Context, id domain.UserID) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, exists := r.identities[id]
	if !exists {
		return nil, domain.ErrIdentityNotFound
	}
	return &identity, nil
}

// PutIdentity adds or replaces an identity.
func (r *MemoryIdentityRepository) PutIdentity(ctx context.Context, identity domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[identity.UserID] = identity
	return nil
}
