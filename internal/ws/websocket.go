package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and streams topic updates until the client
// goes away. initial messages are delivered before any broadcast; the
// leaderboard topic also replays the last published board.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, topic string, initial ...Envelope) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.String("topic", topic), zap.Error(err))
		return
	}

	client := &Client{
		hub:   h,
		id:    uuid.NewString(),
		topic: topic,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
	}

	if b := h.retained(topic); b != nil {
		client.sendDirect(b)
	}
	for _, env := range initial {
		if b, ok := h.marshal(env); ok {
			client.sendDirect(b)
		}
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go client.writePump()
	client.readPump()
}
