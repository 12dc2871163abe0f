package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"streamhub/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestViewerCountSyncer_PersistsLiveCountAndBroadcasts(t *testing.T) {
	registry := NewRoomRegistry()
	b := NewBroadcaster(registry, nil, testLogger)
	a := attach(b, "a", domain.RoleViewer)
	registry.Join("7", "a")
	registry.Join("7", "b")

	store := &mockViewerCountStore{}
	store.On("SetViewerCount", mock.Anything, domain.StreamID("7"), 2).Return(nil).Once()

	syncer := NewViewerCountSyncer(registry, store, b, nil, time.Second, testLogger)
	assert.Equal(t, 2, syncer.Publish(context.Background(), "7"))
	store.AssertExpectations(t)

	events := a.events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventViewerCountUpdate, events[0].Type)

	var payload domain.ViewerCountPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, domain.ViewerCountPayload{StreamID: "7", ViewerCount: 2}, payload)
}

func TestViewerCountSyncer_StoreFailureStillBroadcasts(t *testing.T) {
	registry := NewRoomRegistry()
	metrics := &countingMetrics{}
	b := NewBroadcaster(registry, metrics, testLogger)
	a := attach(b, "a", domain.RoleViewer)
	registry.Join("7", "a")

	store := &mockViewerCountStore{}
	store.On("SetViewerCount", mock.Anything, domain.StreamID("7"), 1).Return(errors.New("db down"))

	syncer := NewViewerCountSyncer(registry, store, b, metrics, time.Second, testLogger)
	assert.Equal(t, 1, syncer.Publish(context.Background(), "7"))
	assert.Equal(t, []domain.EventType{domain.EventViewerCountUpdate}, a.types())
	assert.Equal(t, 1, metrics.failed["set_viewer_count"])
}

func TestViewerCountSyncer_ReadsCountAtCallTime(t *testing.T) {
	registry := NewRoomRegistry()
	b := NewBroadcaster(registry, nil, testLogger)
	store := &mockViewerCountStore{}
	store.On("SetViewerCount", mock.Anything, domain.StreamID("7"), mock.Anything).Return(nil)
	syncer := NewViewerCountSyncer(registry, store, b, nil, 0, testLogger)

	registry.Join("7", "a")
	registry.Join("7", "b")
	registry.Leave("7", "a")
	syncer.Publish(context.Background(), "7")

	store.AssertCalled(t, "SetViewerCount", mock.Anything, domain.StreamID("7"), 1)
	store.AssertNotCalled(t, "SetViewerCount", mock.Anything, domain.StreamID("7"), 2)
}
