package service

import (
	"context"
	"sync"
	"time"

	"github.com/ArtemMoroz51/devween/internal/game"
	"github.com/stretchr/testify/mock"
)

type mockRecordStore struct {
	mock.Mock
}

func (m *mockRecordStore) Fetch(ctx context.Context) ([]game.PlayerRecord, error) {
	args := m.Called(ctx)
	recs, _ := args.Get(0).([]game.PlayerRecord)
	return recs, args.Error(1)
}

func (m *mockRecordStore) Submit(ctx context.Context, rec game.PlayerRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

type recordingSink struct {
	mu          sync.Mutex
	leaderboard [][]game.LeaderboardEntry
	rounds      map[string][]game.RoundState
}

func newRecordingSink() *recordingSink {
	return &recordingSink{rounds: make(map[string][]game.RoundState)}
}

func (s *recordingSink) PublishLeaderboard(entries []game.LeaderboardEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaderboard = append(s.leaderboard, entries)
}

func (s *recordingSink) PublishRound(id string, st game.RoundState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[id] = append(s.rounds[id], st)
}

func (s *recordingSink) lastRound(id string) (game.RoundState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rounds[id]
	if len(r) == 0 {
		return game.RoundState{}, false
	}
	return r[len(r)-1], true
}

func (s *recordingSink) leaderboardCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leaderboard)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 10, 31, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
