package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"chessvariants-server/internal/model"

	"github.com/gorilla/websocket"
)

// Client represents one connected player's WebSocket peer, keyed by the
// user id it authenticated with. Write coalescing and ping/pong keepalive
// follow the same shape as the rest of this codebase's WS-heavy services:
// one writer goroutine draining a buffered channel, one reader goroutine
// blocking on ReadMessage.
type Client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	srv    *Server
}

func (c *Client) close() {
	select {
	case <-c.send:
	default:
	}
	c.conn.Close()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			// Drain any further queued messages into the same frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.srv.hub.remove(c)
		c.conn.Close()
		if c.srv.log != nil {
			c.srv.log.Info("ws client disconnected", slog.String("user_id", c.userID))
		}
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env inEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.srv.hub.SendError(c.userID, "", model.CodeInvalidInput, "malformed envelope")
			continue
		}
		c.srv.handleMessage(context.Background(), c, env)
	}
}
