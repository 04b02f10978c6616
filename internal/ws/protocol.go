package ws

import "encoding/json"

const (
	TypeLeaderboard = "leaderboard"
	TypeRound       = "round"
	TypePong        = "pong"
	TypeError       = "error"
)

type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type RoundPayload struct {
	SessionID string      `json:"sessionId"`
	State     interface{} `json:"state"`
}

type clientMsg struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
