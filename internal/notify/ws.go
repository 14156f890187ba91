package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 10 * time.Second

// WSConn adapts a gorilla WebSocket connection to the Conn interface.
// gorilla permits only one concurrent writer, so writes are serialized here.
type WSConn struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWSConn wraps an upgraded WebSocket connection.
func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn, writeTimeout: defaultWriteTimeout}
}

// WriteEvent sends one event as a text frame. A closed or timed-out peer is
// reported as ErrGone so the registry can classify the failure.
func (c *WSConn) WriteEvent(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
			return fmt.Errorf("%w: %v", ErrGone, err)
		}
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *WSConn) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close websocket: %w", err)
	}
	return nil
}
