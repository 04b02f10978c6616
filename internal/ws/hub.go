package ws

import (
	"encoding/json"
	"sync"

	"github.com/ArtemMoroz51/devween/internal/game"
	"go.uber.org/zap"
)

const LeaderboardTopic = "leaderboard"

// SessionTopic is the topic carrying round updates of one session.
func SessionTopic(sessionID string) string {
	return "session:" + sessionID
}

// Hub fans state out to websocket clients grouped by topic. It is the
// server side of the one-way UI sink: clients never drive the game through it.
type Hub struct {
	log *zap.Logger

	mu             sync.RWMutex
	clientsByTopic map[string]map[*Client]struct{}
	lastBoard      []byte

	register   chan *Client
	unregister chan *Client
	broadcast  chan topicMessage
	done       chan struct{}
	closeOnce  sync.Once
}

type topicMessage struct {
	topic string
	data  []byte
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		log:            log,
		clientsByTopic: make(map[string]map[*Client]struct{}),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan topicMessage, broadcastBuffer),
		done:           make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) PublishLeaderboard(entries []game.LeaderboardEntry) {
	b, ok := h.marshal(Envelope{Type: TypeLeaderboard, Payload: entries})
	if !ok {
		return
	}
	h.mu.Lock()
	h.lastBoard = b
	h.mu.Unlock()
	h.enqueue(LeaderboardTopic, b)
}

func (h *Hub) PublishRound(sessionID string, st game.RoundState) {
	b, ok := h.marshal(Envelope{Type: TypeRound, Payload: RoundPayload{SessionID: sessionID, State: st}})
	if !ok {
		return
	}
	h.enqueue(SessionTopic(sessionID), b)
}

// Subscribers reports how many clients listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clientsByTopic[topic])
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) marshal(env Envelope) ([]byte, bool) {
	b, err := json.Marshal(env)
	if err != nil {
		h.log.Error("ws broadcast marshal failed", zap.String("type", env.Type), zap.Error(err))
		return nil, false
	}
	return b, true
}

// enqueue never blocks: publishers hold session locks.
func (h *Hub) enqueue(topic string, b []byte) {
	select {
	case h.broadcast <- topicMessage{topic: topic, data: b}:
	case <-h.done:
	default:
		h.log.Warn("ws broadcast queue full, dropping", zap.String("topic", topic))
	}
}

func (h *Hub) retained(topic string) []byte {
	if topic != LeaderboardTopic {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastBoard
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for topic, clients := range h.clientsByTopic {
				for c := range clients {
					close(c.send)
				}
				delete(h.clientsByTopic, topic)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if _, ok := h.clientsByTopic[c.topic]; !ok {
				h.clientsByTopic[c.topic] = make(map[*Client]struct{})
			}
			h.clientsByTopic[c.topic][c] = struct{}{}
			h.mu.Unlock()

			h.log.Info("ws client registered", zap.String("topic", c.topic), zap.String("client_id", c.id))

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for c := range h.clientsByTopic[msg.topic] {
				select {
				case c.send <- msg.data:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.log.Warn("ws client too slow, dropping", zap.String("topic", c.topic), zap.String("client_id", c.id))
				h.drop(c)
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clientsByTopic[c.topic]
	if !ok {
		return
	}
	if _, exists := clients[c]; !exists {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.clientsByTopic, c.topic)
	}
	h.log.Info("ws client unregistered", zap.String("topic", c.topic), zap.String("client_id", c.id))
}
