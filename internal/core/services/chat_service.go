package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"streamhub/internal/core/domain"
	"streamhub/internal/core/ports"
	"streamhub/pkg/moderation"
	"streamhub/pkg/validation"

	"go.uber.org/zap"
)

type ChatConfig struct {
	MaxMessageLength int
	HistoryLimit     int
	PersistTimeout   time.Duration
}

// ChatService validates, moderates and persists chat messages. It never
// broadcasts: callers fan a message out only after Send has returned it.
type ChatService struct {
	store     ports.ChatHistoryStore
	moderator *moderation.Moderator
	metrics   ports.RealtimeMetrics
	logger    *zap.SugaredLogger
	cfg       ChatConfig
}

func NewChatService(
	store ports.ChatHistoryStore,
	moderator *moderation.Moderator,
	metrics ports.RealtimeMetrics,
	cfg ChatConfig,
	logger *zap.SugaredLogger,
) *ChatService {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &ChatService{
		store:     store,
		moderator: moderator,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Send persists a message from author to streamID. Whitespace-only
// bodies fail with domain.ErrEmptyMessage before touching the store.
func (s *ChatService) Send(ctx context.Context, author domain.Identity, streamID domain.StreamID, body string, kind domain.MessageKind) (*domain.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domain.ErrEmptyMessage
	}
	if s.cfg.MaxMessageLength > 0 {
		if err := validation.ValidateStringLength(body, 1, s.cfg.MaxMessageLength, "message"); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMessageTooLong, err)
		}
	}
	if censored, changed := s.moderator.Censor(body); changed {
		s.logger.Debugw("Censored chat message", "stream_id", streamID, "user_id", author.UserID)
		body = censored
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msg, err := s.store.AppendChatMessage(ctx, domain.ChatDraft{
		StreamID: streamID,
		Author:   author,
		Body:     body,
		Kind:     kind,
	})
	if err != nil {
		s.metrics.PersistenceFailed("append_chat_message")
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	s.metrics.ChatMessagePersisted(kind)
	return msg, nil
}

// History returns the newest messages of streamID, oldest first, capped
// at the configured history limit. The slice is never nil.
func (s *ChatService) History(ctx context.Context, streamID domain.StreamID) ([]*domain.ChatMessage, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	messages, err := s.store.FetchRecentChatMessages(ctx, streamID, s.cfg.HistoryLimit)
	if err != nil {
		s.metrics.PersistenceFailed("fetch_chat_history")
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if len(messages) > s.cfg.HistoryLimit {
		messages = messages[len(messages)-s.cfg.HistoryLimit:]
	}
	if messages == nil {
		messages = []*domain.ChatMessage{}
	}
	return messages, nil
}

func (s *ChatService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.PersistTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.PersistTimeout)
}
