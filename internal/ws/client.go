package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Client struct {
	hub   *Hub
	id    string
	topic string
	conn  *websocket.Conn
	send  chan []byte
}

// sendDirect queues a message for this client only. It is used before the
// client is registered, so nothing else writes to send yet.
func (c *Client) sendDirect(b []byte) {
	select {
	case c.send <- b:
	default:
	}
}

func (c *Client) sendJSON(env Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		c.hub.log.Error("ws send marshal failed", zap.String("client_id", c.id), zap.Error(err))
		return
	}
	c.hub.mu.RLock()
	_, registered := c.hub.clientsByTopic[c.topic][c]
	if registered {
		select {
		case c.send <- b:
		default:
		}
	}
	c.hub.mu.RUnlock()
}

// readPump only keeps the connection alive and answers pings; state changes
// go through the HTTP API.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
		c.hub.log.Info("ws connection closed", zap.String("topic", c.topic), zap.String("client_id", c.id))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg clientMsg
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("ws read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			c.sendJSON(Envelope{Type: TypePong, Payload: map[string]bool{"ok": true}})
		default:
			c.hub.log.Warn("unknown ws message type", zap.String("client_id", c.id), zap.String("type", msg.Type))
			c.sendJSON(Envelope{Type: TypeError, Payload: map[string]string{"message": "read-only stream"}})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.Warn("ws write failed", zap.String("client_id", c.id), zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.log.Warn("ws ping failed", zap.String("client_id", c.id), zap.Error(err))
				return
			}
		}
	}
}
