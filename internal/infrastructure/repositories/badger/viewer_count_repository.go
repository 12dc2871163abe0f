package badger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"streamhub/internal/core/domain"

	"github.com/dgraph-io/badger/v4"
)

type BadgerViewerCountRepository struct {
	db *badger.DB
}

func NewBadgerViewerCountRepository(db *badger.DB) *BadgerViewerCountRepository {
	return &BadgerViewerCountRepository{db: db}
}

func viewerKey(streamID domain.StreamID) []byte {
	return []byte("viewers:" + string(streamID))
}

func (r *BadgerViewerCountRepository) SetViewerCount(ctx context.Context, streamID domain.StreamID, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(viewerKey(streamID), []byte(strconv.Itoa(count)))
	})
	if err != nil {
		return fmt.Errorf("failed to store viewer count: %w", err)
	}
	return nil
}

// ViewerCount returns the stored count, or zero for a stream never written.
func (r *BadgerViewerCountRepository) ViewerCount(ctx context.Context, streamID domain.StreamID) (int, error) {
	var count int
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(viewerKey(streamID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			count, err = strconv.Atoi(string(value))
			return err
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read viewer count: %w", err)
	}
	return count, nil
}
