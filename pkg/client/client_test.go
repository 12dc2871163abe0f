package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"streamhub/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeServer speaks just enough of the realtime protocol to drive the
// client: it authenticates "good", answers pings and acknowledges joins.
type fakeServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	attempts int
	conns    []*websocket.Conn
	received []string
	// silent connections (1-based) never answer pings
	silent map[int]bool
	// reject refuses every upgrade after the first n connections when > 0
	rejectAfter int
	// mute never answers authenticate
	mute bool
	// muteAfter stops answering authenticate after the first n connections when > 0
	muteAfter int
}

func newFakeServer(t *testing.T) *fakeServer {
	fs := &fakeServer{t: t, silent: map[int]bool{}}
	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.attempts++
		n := fs.attempts
		reject := fs.rejectAfter > 0 && n > fs.rejectAfter
		fs.mu.Unlock()
		if reject {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.mu.Unlock()
		fs.serve(n, conn)
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) serve(n int, conn *websocket.Conn) {
	defer conn.Close()
	reply := func(t domain.EventType, payload any) {
		data, _ := domain.NewEvent(t, payload).Encode()
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}

		fs.mu.Lock()
		fs.received = append(fs.received, fmt.Sprintf("%d:%s:%s", n, env.Type, env.Payload))
		silent, mute := fs.silent[n], fs.mute || (fs.muteAfter > 0 && n > fs.muteAfter)
		fs.mu.Unlock()

		switch env.Type {
		case domain.EventAuthenticate:
			if mute {
				continue
			}
			var p struct{ Token string }
			_ = json.Unmarshal(env.Payload, &p)
			if p.Token != "good" {
				reply(domain.EventAuthenticated, domain.AuthenticatedPayload{Success: false, Error: "invalid token"})
				continue
			}
			reply(domain.EventAuthenticated, domain.AuthenticatedPayload{
				Success:      true,
				ConnectionID: domain.ConnectionID(fmt.Sprintf("conn-%d", n)),
			})
		case domain.EventPing:
			if !silent {
				reply(domain.EventPong, nil)
			}
		case domain.EventJoinStream:
			var p streamRequest
			_ = json.Unmarshal(env.Payload, &p)
			reply(domain.EventViewerCountUpdate, domain.ViewerCountPayload{StreamID: p.StreamID, ViewerCount: 1})
		}
	}
}

// dropAll closes every server-side socket without a close frame.
func (fs *fakeServer) dropAll() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, c := range fs.conns {
		_ = c.UnderlyingConn().Close()
	}
}

func (fs *fakeServer) messages(prefix string) []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []string
	for _, m := range fs.received {
		if strings.HasPrefix(m, prefix) {
			out = append(out, m)
		}
	}
	return out
}

func (fs *fakeServer) attemptCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.attempts
}

type transition struct {
	state    State
	attempts int
}

type recorder struct {
	mu  sync.Mutex
	all []transition
}

func (r *recorder) record(s State, status ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, transition{s, status.ReconnectAttempts})
}

func (r *recorder) list() []transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transition(nil), r.all...)
}

func testConfig(url, token string) Config {
	return Config{
		URL:               url,
		Token:             token,
		HeartbeatInterval: 30 * time.Millisecond,
		HeartbeatTimeout:  30 * time.Millisecond,
		ConnectTimeout:    500 * time.Millisecond,
		ReconnectDelay:    10 * time.Millisecond,
		ReconnectMaxDelay: 40 * time.Millisecond,
		ReconnectFactor:   1.5,
		MaxReconnects:     3,
	}
}

func newTestClient(t *testing.T, cfg Config) (*Client, *recorder) {
	t.Helper()
	c, err := New(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	rec := &recorder{}
	c.OnStateChange(rec.record)
	t.Cleanup(func() { _ = c.Close() })
	return c, rec
}

func TestConnect_Authenticates(t *testing.T) {
	fs := newFakeServer(t)
	c, rec := newTestClient(t, testConfig(fs.url(), "good"))

	require.NoError(t, c.Connect(context.Background()))

	assert.Equal(t, StateAuthenticated, c.State())
	assert.Equal(t, ConnectionStatus{Connected: true, ReconnectAttempts: 0, ConnectionID: "conn-1"}, c.Status())
	assert.Equal(t, []transition{{StateConnecting, 0}, {StateAuthenticated, 0}}, rec.list())

	// connecting twice is a no-op
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 1, fs.attemptCount())
}

func TestConnect_TokenRejected(t *testing.T) {
	fs := newFakeServer(t)
	c, _ := newTestClient(t, testConfig(fs.url(), "bad"))

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrAuthRejected)
	assert.Contains(t, err.Error(), "invalid token")
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.Status().Connected)
}

func TestConnect_TimesOutWithoutAuthReply(t *testing.T) {
	fs := newFakeServer(t)
	fs.mute = true
	cfg := testConfig(fs.url(), "good")
	cfg.ConnectTimeout = 100 * time.Millisecond
	c, _ := newTestClient(t, cfg)

	start := time.Now()
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnectTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestOperations_RequireConnection(t *testing.T) {
	c, _ := newTestClient(t, testConfig("ws://127.0.0.1:1/ws", "good"))

	assert.ErrorIs(t, c.JoinStream("7"), ErrNotConnected)
	assert.ErrorIs(t, c.SendChat("7", "hi"), ErrNotConnected)
	assert.Empty(t, c.Rooms())
}

func TestSendChat_RefusesBlankMessages(t *testing.T) {
	fs := newFakeServer(t)
	c, _ := newTestClient(t, testConfig(fs.url(), "good"))
	require.NoError(t, c.Connect(context.Background()))

	assert.ErrorIs(t, c.SendChat("7", "   "), domain.ErrEmptyMessage)
	require.NoError(t, c.SendChat("7", "  hi  "))

	require.Eventually(t, func() bool {
		return len(fs.messages("1:chat_message")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, `1:chat_message:{"streamId":7,"message":"hi"}`, fs.messages("1:chat_message")[0])
}

func TestJoinStream_DeliversServerEvents(t *testing.T) {
	fs := newFakeServer(t)
	c, _ := newTestClient(t, testConfig(fs.url(), "good"))

	counts := make(chan domain.ViewerCountPayload, 1)
	c.On(domain.EventViewerCountUpdate, func(payload json.RawMessage) {
		var p domain.ViewerCountPayload
		if json.Unmarshal(payload, &p) == nil {
			counts <- p
		}
	})
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.JoinStream("7"))
	assert.ErrorContains(t, c.JoinStream("bad id"), "invalid stream ID format")

	select {
	case p := <-counts:
		assert.Equal(t, domain.ViewerCountPayload{StreamID: "7", ViewerCount: 1}, p)
	case <-time.After(time.Second):
		t.Fatal("no viewer_count_update received")
	}
	assert.Equal(t, []domain.StreamID{"7"}, c.Rooms())

	require.NoError(t, c.LeaveStream("7"))
	assert.Empty(t, c.Rooms())
}

func TestHeartbeatTimeout_ReconnectsAndRejoins(t *testing.T) {
	fs := newFakeServer(t)
	fs.silent[1] = true
	c, rec := newTestClient(t, testConfig(fs.url(), "good"))

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.JoinStream("7"))

	require.Eventually(t, func() bool {
		return c.Status().ConnectionID == "conn-2"
	}, 2*time.Second, 5*time.Millisecond)

	// the half-open connection is detected by the heartbeat alone
	transitions := rec.list()
	require.GreaterOrEqual(t, len(transitions), 4)
	assert.Equal(t, transition{StateReconnecting, 1}, transitions[2])
	assert.Equal(t, transition{StateAuthenticated, 0}, transitions[3])
	assert.Equal(t, 0, c.Status().ReconnectAttempts)

	require.Eventually(t, func() bool {
		return len(fs.messages("2:join_stream")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, `2:join_stream:{"streamId":7}`, fs.messages("2:join_stream")[0])
}

func TestReconnect_GivesUpAfterMaxAttempts(t *testing.T) {
	fs := newFakeServer(t)
	fs.rejectAfter = 1
	c, rec := newTestClient(t, testConfig(fs.url(), "good"))

	require.NoError(t, c.Connect(context.Background()))
	fs.dropAll()

	require.Eventually(t, func() bool {
		return c.State() == StateFailed
	}, 3*time.Second, 5*time.Millisecond)

	assert.Equal(t, 3, c.Status().ReconnectAttempts)
	assert.Equal(t, 4, fs.attemptCount())

	var reconnecting []int
	for _, tr := range rec.list() {
		if tr.state == StateReconnecting {
			reconnecting = append(reconnecting, tr.attempts)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, reconnecting)
}

func TestReconnect_AuthTimeoutCountsAsFailedAttempt(t *testing.T) {
	fs := newFakeServer(t)
	fs.muteAfter = 1
	cfg := testConfig(fs.url(), "good")
	cfg.ConnectTimeout = 50 * time.Millisecond
	c, rec := newTestClient(t, cfg)

	require.NoError(t, c.Connect(context.Background()))
	fs.dropAll()

	require.Eventually(t, func() bool {
		return c.State() == StateFailed
	}, 3*time.Second, 5*time.Millisecond)

	// every reconnect reached the server and sent authenticate, then timed out
	assert.Equal(t, 4, fs.attemptCount())
	for n := 2; n <= 4; n++ {
		assert.Len(t, fs.messages(fmt.Sprintf("%d:authenticate", n)), 1, "connection %d", n)
	}
	assert.Equal(t, 3, c.Status().ReconnectAttempts)

	var reconnecting []int
	for _, tr := range rec.list() {
		if tr.state == StateReconnecting {
			reconnecting = append(reconnecting, tr.attempts)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, reconnecting)
}

func TestClose_WaitsForConcurrentConnect(t *testing.T) {
	fs := newFakeServer(t)

	for i := 0; i < 20; i++ {
		c, err := New(testConfig(fs.url(), "good"), zap.NewNop().Sugar())
		require.NoError(t, err)

		connected := make(chan error, 1)
		go func() { connected <- c.Connect(context.Background()) }()
		time.Sleep(time.Duration(i%5) * time.Millisecond)

		require.NoError(t, c.Close())
		assert.Equal(t, StateClosed, c.State())

		err = <-connected
		if err != nil {
			assert.ErrorIs(t, err, ErrClosed)
		}
		assert.Equal(t, StateClosed, c.State())
	}
}

func TestConnect_LogsConnection(t *testing.T) {
	fs := newFakeServer(t)
	core, logs := observer.New(zap.InfoLevel)
	c, err := New(testConfig(fs.url(), "good"), zap.New(core).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Connect(context.Background()))

	entries := logs.FilterMessage("Connected to signaling server").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, "conn-1", entries[0].ContextMap()["connection_id"])
}

func TestClose_StopsReconnecting(t *testing.T) {
	fs := newFakeServer(t)
	fs.rejectAfter = 1
	cfg := testConfig(fs.url(), "good")
	cfg.ReconnectDelay = time.Second
	cfg.ReconnectMaxDelay = time.Second
	c, _ := newTestClient(t, cfg)

	require.NoError(t, c.Connect(context.Background()))
	fs.dropAll()
	require.Eventually(t, func() bool {
		return c.State() == StateReconnecting
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed)
}

func TestNew_ValidatesConfig(t *testing.T) {
	logger := zap.NewNop().Sugar()

	_, err := New(testConfig("ftp://example.com", "good"), logger)
	assert.Error(t, err)

	cfg := testConfig("ws://localhost/ws", "good")
	cfg.MaxReconnects = 0
	_, err = New(cfg, logger)
	assert.Error(t, err)
}

func TestReconnectState_Backoff(t *testing.T) {
	r := NewReconnectState(2*time.Second, 30*time.Second, 1.5, 10)

	want := []time.Duration{
		2 * time.Second,
		3 * time.Second,
		4500 * time.Millisecond,
		6750 * time.Millisecond,
		10125 * time.Millisecond,
		15187500 * time.Microsecond,
		22781250 * time.Microsecond,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		d, ok := r.Next()
		require.True(t, ok)
		assert.InDelta(t, float64(w), float64(d), float64(time.Microsecond), "attempt %d", i+1)
		assert.Equal(t, i+1, r.Attempts())
	}

	_, ok := r.Next()
	assert.False(t, ok)
	assert.Equal(t, 10, r.Attempts())
	assert.True(t, r.Exhausted())

	r.Reset()
	assert.Equal(t, 0, r.Attempts())
	d, ok := r.Next()
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "state(42)", State(42).String())
}
