package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"streamhub/internal/core/domain"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
)

type PostgresChatRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresChatRepository(pool *pgxpool.Pool) *PostgresChatRepository {
	return &PostgresChatRepository{pool: pool}
}

func (r *PostgresChatRepository) AppendChatMessage(ctx context.Context, draft domain.ChatDraft) (*domain.ChatMessage, error) {
	var (
		id        int64
		createdAt time.Time
	)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (stream_id, user_id, message, message_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		string(draft.StreamID), string(draft.Author.UserID), draft.Body, string(draft.Kind),
	).Scan(&id, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert chat message: %w", err)
	}

	return &domain.ChatMessage{
		ID:        strconv.FormatInt(id, 10),
		StreamID:  draft.StreamID,
		User:      draft.Author.Summary(),
		Message:   draft.Body,
		Kind:      draft.Kind,
		Timestamp: createdAt.UTC(),
	}, nil
}

// FetchRecentChatMessages selects the newest limit messages joined with
// their authors and returns them oldest first.
func (r *PostgresChatRepository) FetchRecentChatMessages(ctx context.Context, streamID domain.StreamID, limit int) ([]*domain.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cm.id, cm.message, cm.message_type, cm.created_at,
		       u.id, u.username, u.email, u.role
		FROM chat_messages cm
		JOIN users u ON cm.user_id = u.id
		WHERE cm.stream_id = $1
		ORDER BY cm.created_at DESC, cm.id DESC
		LIMIT $2`,
		string(streamID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.ChatMessage, 0, limit)
	for rows.Next() {
		var (
			id                               int64
			body, kind                       string
			createdAt                        time.Time
			userID, displayName, email, role string
		)
		if err := rows.Scan(&id, &body, &kind, &createdAt, &userID, &displayName, &email, &role); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, &domain.ChatMessage{
			ID:       strconv.FormatInt(id, 10),
			StreamID: streamID,
			User: domain.UserSummary{
				ID:          domain.UserID(userID),
				DisplayName: displayName,
				Email:       email,
				Role:        domain.Role(role),
			},
			Message:   body,
			Kind:      domain.MessageKind(kind),
			Timestamp: createdAt.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chat messages: %w", err)
	}

	return lo.Reverse(messages), nil
}
