package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"streamhub/internal/core/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type BadgerChatRepository struct {
	db  *badger.DB
	now func() time.Time

	// last holds the newest timestamp written per stream so keys of one
	// stream never sort before an earlier message.
	mu   sync.Mutex
	last map[domain.StreamID]time.Time
}

func NewBadgerChatRepository(db *badger.DB) *BadgerChatRepository {
	return &BadgerChatRepository{
		db:   db,
		now:  time.Now,
		last: make(map[domain.StreamID]time.Time),
	}
}

func messagePrefix(streamID domain.StreamID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", streamID))
}

// messageKey is "msg:{stream}:{unix nanos, 19 digits}:{uuid}". The padding
// keeps lexicographic order chronological; the uuid separates messages
// written in the same nanosecond.
func messageKey(streamID domain.StreamID, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", streamID, at.UnixNano(), id))
}

func (r *BadgerChatRepository) AppendChatMessage(ctx context.Context, draft domain.ChatDraft) (*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg := &domain.ChatMessage{
		ID:        uuid.NewString(),
		StreamID:  draft.StreamID,
		User:      draft.Author.Summary(),
		Message:   draft.Body,
		Kind:      draft.Kind,
		Timestamp: r.stamp(draft.StreamID),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat message: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.StreamID, msg.Timestamp, msg.ID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store chat message: %w", err)
	}
	return msg, nil
}

func (r *BadgerChatRepository) stamp(streamID domain.StreamID) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.now().UTC()
	if last, ok := r.last[streamID]; ok && !ts.After(last) {
		ts = last.Add(time.Nanosecond)
	}
	r.last[streamID] = ts
	return ts
}

// FetchRecentChatMessages walks the stream's keys backwards from the
// newest and returns at most limit messages, oldest first.
func (r *BadgerChatRepository) FetchRecentChatMessages(ctx context.Context, streamID domain.StreamID, limit int) ([]*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := make([]*domain.ChatMessage, 0)
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(streamID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var msg domain.ChatMessage
				if err := json.Unmarshal(value, &msg); err != nil {
					return err
				}
				messages = append(messages, &msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read chat messages: %w", err)
	}
	return lo.Reverse(messages), nil
}
