package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"streamhub/internal/core/domain"
	"streamhub/pkg/client"
	"streamhub/pkg/config"
	"streamhub/pkg/logger"

	"github.com/gookit/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.Disable()
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestPrinter_ChatAndHistory(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	alice := domain.UserSummary{ID: "1", DisplayName: "alice", Role: domain.RoleViewer}

	p.chat(mustJSON(t, domain.ChatMessage{StreamID: "7", User: alice, Message: "hi all", Kind: domain.MessageKindText, Timestamp: ts}))
	p.history(mustJSON(t, []domain.ChatMessage{
		{StreamID: "7", User: alice, Message: "earlier", Kind: domain.MessageKindText, Timestamp: ts},
		{StreamID: "7", User: alice, Message: "stream starting", Kind: domain.MessageKindSystem, Timestamp: ts},
	}))

	out := buf.String()
	assert.Contains(t, out, "alice: hi all")
	assert.Contains(t, out, "alice: earlier")
	assert.Contains(t, out, "* stream starting")
}

func TestPrinter_EmptyHistory(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.history(json.RawMessage("null"))
	assert.Empty(t, buf.String())
}

func TestPrinter_ViewerList(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.viewerList(mustJSON(t, domain.ViewerListPayload{
		StreamID:    "7",
		ViewerCount: 2,
		Viewers: []domain.MemberSummary{
			{ConnectionID: "c1", User: domain.UserSummary{ID: "1", DisplayName: "alice", Role: domain.RoleViewer}},
			{ConnectionID: "c2", User: domain.UserSummary{ID: "2", DisplayName: "bob", Role: domain.RoleOperator}},
		},
	}))

	out := buf.String()
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "operator")
	assert.Contains(t, out, "TOTAL")
}

func TestPrinter_PresenceAndCounts(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.presence("joined")(mustJSON(t, domain.PresencePayload{StreamID: "7", User: domain.UserSummary{ID: "2", DisplayName: "bob"}}))
	p.viewerCount(mustJSON(t, domain.ViewerCountPayload{StreamID: "7", ViewerCount: 3}))
	p.notification(mustJSON(t, domain.NotificationPayload{Message: "maintenance at noon", Type: "info"}))
	p.serverError(mustJSON(t, domain.ErrorPayload{Message: "Not in stream"}))

	out := buf.String()
	assert.Contains(t, out, "bob joined")
	assert.Contains(t, out, "-- 3 watching stream 7")
	assert.Contains(t, out, "maintenance at noon")
	assert.Contains(t, out, "error: Not in stream")
}

func TestPrinter_StateChanges(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.state(client.StateReconnecting, client.ConnectionStatus{ReconnectAttempts: 2})
	p.state(client.StateAuthenticated, client.ConnectionStatus{Connected: true})
	p.state(client.StateFailed, client.ConnectionStatus{})

	out := buf.String()
	assert.Contains(t, out, "reconnecting (attempt 2)")
	assert.Contains(t, out, "-- connected")
	assert.Contains(t, out, "gave up reconnecting")
}

func TestHandleLine_Commands(t *testing.T) {
	cfg := client.ConfigFrom(config.DefaultConfig(), "t")
	c, err := client.New(cfg, logger.NewNop())
	require.NoError(t, err)

	done, err := handleLine(c, "7", "  ")
	assert.False(t, done)
	assert.NoError(t, err)

	done, err = handleLine(c, "7", "/quit")
	assert.True(t, done)
	assert.NoError(t, err)

	_, err = handleLine(c, "7", "hello")
	assert.ErrorIs(t, err, client.ErrNotConnected)
}
