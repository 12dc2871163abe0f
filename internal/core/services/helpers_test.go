package services

import (
	"context"
	"encoding/json"
	"sync"

	"streamhub/internal/core/domain"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

var testLogger = zap.NewNop().Sugar()

type recordedEvent struct {
	Type    domain.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

// fakeOutbound records frames; when full is set it refuses them.
type fakeOutbound struct {
	id   domain.ConnectionID
	full bool

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakeOutbound(id domain.ConnectionID) *fakeOutbound {
	return &fakeOutbound{id: id}
}

func (f *fakeOutbound) ID() domain.ConnectionID { return f.id }

func (f *fakeOutbound) Enqueue(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full || f.closed {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeOutbound) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeOutbound) events() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedEvent, 0, len(f.frames))
	for _, frame := range f.frames {
		var ev recordedEvent
		if err := json.Unmarshal(frame, &ev); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeOutbound) types() []domain.EventType {
	var types []domain.EventType
	for _, ev := range f.events() {
		types = append(types, ev.Type)
	}
	return types
}

type mockChatStore struct{ mock.Mock }

func (m *mockChatStore) AppendChatMessage(ctx context.Context, draft domain.ChatDraft) (*domain.ChatMessage, error) {
	args := m.Called(ctx, draft)
	msg, _ := args.Get(0).(*domain.ChatMessage)
	return msg, args.Error(1)
}

func (m *mockChatStore) FetchRecentChatMessages(ctx context.Context, streamID domain.StreamID, limit int) ([]*domain.ChatMessage, error) {
	args := m.Called(ctx, streamID, limit)
	msgs, _ := args.Get(0).([]*domain.ChatMessage)
	return msgs, args.Error(1)
}

type mockViewerCountStore struct{ mock.Mock }

func (m *mockViewerCountStore) SetViewerCount(ctx context.Context, streamID domain.StreamID, count int) error {
	return m.Called(ctx, streamID, count).Error(0)
}

type mockIdentityStore struct{ mock.Mock }

func (m *mockIdentityStore) FindIdentityByID(ctx context.Context, id domain.UserID) (*domain.Identity, error) {
	args := m.Called(ctx, id)
	identity, _ := args.Get(0).(*domain.Identity)
	return identity, args.Error(1)
}

type countingMetrics struct {
	NopMetrics
	mu      sync.Mutex
	dropped int
	failed  map[string]int
}

func (m *countingMetrics) FramesDropped(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped += n
}

func (m *countingMetrics) PersistenceFailed(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed == nil {
		m.failed = map[string]int{}
	}
	m.failed[op]++
}
