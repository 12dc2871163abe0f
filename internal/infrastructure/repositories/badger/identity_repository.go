package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"streamhub/internal/core/domain"

	"github.com/dgraph-io/badger/v4"
)

type BadgerIdentityRepository struct {
	db *badger.DB
}

func NewBadgerIdentityRepository(db *badger.DB) *BadgerIdentityRepository {
	return &BadgerIdentityRepository{db: db}
}

func userKey(id domain.UserID) []byte {
	return []byte("user:" + string(id))
}

func (r *BadgerIdentityRepository) FindIdentityByID(ctx context.Context, id domain.UserID) (*domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var identity domain.Identity
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &identity)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read identity: %w", err)
	}
	return &identity, nil
}

func (r *BadgerIdentityRepository) PutIdentity(ctx context.Context, identity domain.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(identity.UserID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store identity: %w", err)
	}
	return nil
}
