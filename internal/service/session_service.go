package service

import (
	"context"
	"errors"
	"time"

	"github.com/ArtemMoroz51/devween/internal/game"
)

var ErrUnknownSession = errors.New("unknown session")

// Sink receives read-only state for connected clients.
type Sink interface {
	PublishLeaderboard(entries []game.LeaderboardEntry)
	PublishRound(sessionID string, st game.RoundState)
}

type nopSink struct{}

func (nopSink) PublishLeaderboard([]game.LeaderboardEntry) {}
func (nopSink) PublishRound(string, game.RoundState)       {}

type Config struct {
	Round        game.RoundConfig
	RefreshEvery time.Duration
	// SessionTTL is how long an untouched session lives. Negative keeps
	// sessions until dropped.
	SessionTTL   time.Duration
	StoreTimeout time.Duration
	Clock        Clock
}

type SessionView struct {
	ID        string          `json:"id"`
	Player    *PlayerView     `json:"player,omitempty"`
	Challenge *game.Challenge `json:"challenge,omitempty"`
	Round     game.RoundState `json:"round"`
}

type PlayerView struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
	Coins int    `json:"coins"`
	Rank  int    `json:"rank,omitempty"`
}

type RoundOutcome struct {
	Result     game.RoundResult `json:"result"`
	Player     *PlayerView      `json:"player,omitempty"`
	Settlement *SettlementView  `json:"settlement,omitempty"`
}

type SettlementView struct {
	Won         bool   `json:"won"`
	Target      string `json:"target"`
	BetCoins    int    `json:"betCoins"`
	TargetCoins int    `json:"targetCoins"`
}

type SessionService interface {
	CreateSession() SessionView
	Session(id string) (SessionView, error)
	DropSession(id string)

	Login(ctx context.Context, id, name, password string) (bool, error)
	Logout(id string) error

	StartRound(id string) (game.RoundState, error)
	Advance(ctx context.Context, id string) (game.RoundState, error)
	Fail(ctx context.Context, id string) (RoundOutcome, error)
	RoundState(id string) (game.RoundState, error)

	SelectChallenge(id, target string) (game.Challenge, error)
	CancelChallenge(id string) error

	Leaderboard() []game.LeaderboardEntry
	Player(name string) (PlayerView, bool)
	Refresh(ctx context.Context) ([]game.LeaderboardEntry, error)

	Close()
}

func playerView(p game.PlayerRecord) *PlayerView {
	return &PlayerView{Name: p.Name, Score: p.Score, Coins: p.Coins}
}
