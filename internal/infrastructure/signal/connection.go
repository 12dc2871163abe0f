package signal

import (
	"sync"
	"time"

	"streamhub/internal/core/domain"

	"github.com/gorilla/websocket"
)

// Connection is the outbound side of one websocket. Frames are queued
// on a bounded channel and written by a single writer goroutine, so
// Enqueue never blocks the caller.
type Connection struct {
	id   domain.ConnectionID
	ws   *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func newConnection(id domain.ConnectionID, ws *websocket.Conn, queueSize int) *Connection {
	return &Connection{
		id:   id,
		ws:   ws,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

func (c *Connection) ID() domain.ConnectionID { return c.id }

// Enqueue queues frame for writing. It returns false when the
// connection is closed or its queue is full.
func (c *Connection) Enqueue(frame []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops accepting frames. The writer flushes what is already
// queued, sends a close frame and closes the socket.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) writePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame, writeTimeout); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush(writeTimeout)
			return
		}
	}
}

func (c *Connection) write(frame []byte, writeTimeout time.Duration) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Connection) flush(writeTimeout time.Duration) {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame, writeTimeout); err != nil {
				return
			}
		default:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			return
		}
	}
}
