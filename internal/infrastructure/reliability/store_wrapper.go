package reliability

import (
	"context"
	"errors"
	"time"

	"streamhub/internal/core/domain"
	"streamhub/internal/core/ports"
	"streamhub/pkg/circuitbreaker"
	"streamhub/pkg/config"
	"streamhub/pkg/retry"
	"streamhub/pkg/tracing"

	"go.uber.org/zap"
)

// Policies builds the retry and breaker settings shared by every store
// wrapper from the reliability section of the config.
func Policies(cfg *config.Config) (retry.Config, circuitbreaker.Config) {
	r := retry.DefaultConfig()
	r.Enabled = cfg.Reliability.RetryEnabled
	r.MaxAttempts = cfg.Reliability.RetryAttempts
	r.InitialDelay = cfg.Reliability.RetryDelay
	r.MaxDelay = cfg.Reliability.RetryMaxDelay
	r.NonRetryable = []error{context.Canceled, context.DeadlineExceeded, domain.ErrIdentityNotFound}

	cb := circuitbreaker.DefaultConfig()
	cb.FailureThreshold = cfg.Reliability.FailureThreshold
	cb.Timeout = cfg.Reliability.OpenTimeout
	return r, cb
}

// guard runs store calls through one named breaker, optionally retrying
// inside it so a burst of retries counts as a single failure.
type guard struct {
	name    string
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
}

func newGuard(name string, retryCfg retry.Config, cbCfg circuitbreaker.Config, ignore func(error) bool, logger *zap.SugaredLogger) guard {
	cbCfg.Name = name
	if ignore != nil {
		cbCfg.IsFailure = func(err error) bool { return !ignore(err) }
	}
	breaker := circuitbreaker.New(cbCfg)
	breaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
		logger.Warnw("Store circuit breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})
	return guard{name: name, retry: retryCfg, breaker: breaker}
}

// guarded traces one store operation end to end, retries included.
func guarded[T any](ctx context.Context, g guard, op string, retrying bool, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, op, g.name)
	defer span.End()
	start := time.Now()

	result, err := circuitbreaker.Do(ctx, g.breaker, func() (T, error) {
		if !retrying {
			return fn(ctx)
		}
		return retry.Do(ctx, g.retry, func() (T, error) { return fn(ctx) })
	})

	tracing.MeasureDuration(ctx, start)
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return result, err
}

// ChatStore retries history reads. Appends are not idempotent, so they
// only pass through the breaker.
type ChatStore struct {
	store ports.ChatHistoryStore
	guard guard
}

func NewChatStore(store ports.ChatHistoryStore, retryCfg retry.Config, cbCfg circuitbreaker.Config, logger *zap.SugaredLogger) *ChatStore {
	return &ChatStore{store: store, guard: newGuard("chat_history", retryCfg, cbCfg, nil, logger)}
}

func (s *ChatStore) AppendChatMessage(ctx context.Context, draft domain.ChatDraft) (*domain.ChatMessage, error) {
	return guarded(ctx, s.guard, "append_chat_message", false, func(ctx context.Context) (*domain.ChatMessage, error) {
		return s.store.AppendChatMessage(ctx, draft)
	})
}

func (s *ChatStore) FetchRecentChatMessages(ctx context.Context, streamID domain.StreamID, limit int) ([]*domain.ChatMessage, error) {
	return guarded(ctx, s.guard, "fetch_recent_chat_messages", true, func(ctx context.Context) ([]*domain.ChatMessage, error) {
		return s.store.FetchRecentChatMessages(ctx, streamID, limit)
	})
}

func (s *ChatStore) Stats() circuitbreaker.Stats { return s.guard.breaker.GetStats() }

// ViewerCountStore retries count writes; a write is an idempotent
// overwrite.
type ViewerCountStore struct {
	store ports.ViewerCountStore
	guard guard
}

func NewViewerCountStore(store ports.ViewerCountStore, retryCfg retry.Config, cbCfg circuitbreaker.Config, logger *zap.SugaredLogger) *ViewerCountStore {
	return &ViewerCountStore{store: store, guard: newGuard("viewer_count", retryCfg, cbCfg, nil, logger)}
}

func (s *ViewerCountStore) SetViewerCount(ctx context.Context, streamID domain.StreamID, count int) error {
	_, err := guarded(ctx, s.guard, "set_viewer_count", true, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.SetViewerCount(ctx, streamID, count)
	})
	return err
}

func (s *ViewerCountStore) Stats() circuitbreaker.Stats { return s.guard.breaker.GetStats() }

// IdentityStore retries lookups. Unknown users are an answer, not a
// failure, and never trip the breaker.
type IdentityStore struct {
	store ports.IdentityStore
	guard guard
}

func NewIdentityStore(store ports.IdentityStore, retryCfg retry.Config, cbCfg circuitbreaker.Config, logger *zap.SugaredLogger) *IdentityStore {
	notFound := func(err error) bool { return errors.Is(err, domain.ErrIdentityNotFound) }
	return &IdentityStore{store: store, guard: newGuard("identity", retryCfg, cbCfg, notFound, logger)}
}

func (s *IdentityStore) FindIdentityByID(ctx context.Context, id domain.UserID) (*domain.Identity, error) {
	return guarded(ctx, s.guard, "find_identity", true, func(ctx context.Context) (*domain.Identity, error) {
		return s.store.FindIdentityByID(ctx, id)
	})
}

func (s *IdentityStore) Stats() circuitbreaker.Stats { return s.guard.breaker.GetStats() }
