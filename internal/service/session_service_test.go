package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ArtemMoroz51/devween/internal/auth"
	"github.com/ArtemMoroz51/devween/internal/game"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc   SessionService
	store *mockRecordStore
	sink  *recordingSink
	clock *fakeClock
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	f := &fixture{
		store: new(mockRecordStore),
		sink:  newRecordingSink(),
		clock: newFakeClock(),
	}
	if cfg.Clock == nil {
		cfg.Clock = f.clock
	}
	if cfg.RefreshEvery == 0 {
		cfg.RefreshEvery = -1
	}
	svc, err := NewSessionService(f.store, game.NewLeaderboard(), f.sink, nil, cfg)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	f.svc = svc
	return f
}

func recordMatching(name string, score, coins int) interface{} {
	return mock.MatchedBy(func(r game.PlayerRecord) bool {
		return r.Name == name && r.Score == score && r.Coins == coins
	})
}

func advanceN(t *testing.T, svc SessionService, id string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := svc.Advance(context.Background(), id)
		require.NoError(t, err)
	}
}

func TestNewSessionService_InvalidRoundConfig(t *testing.T) {
	cfg := Config{Round: game.DefaultRoundConfig()}
	cfg.Round.MaxMultiplier = 3

	_, err := NewSessionService(new(mockRecordStore), nil, nil, nil, cfg)
	require.ErrorIs(t, err, game.ErrInvalidConfig)
}

func TestSessionService_UnknownSession(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.svc.Session("nope")
	require.ErrorIs(t, err, ErrUnknownSession)
	_, err = f.svc.StartRound("nope")
	require.ErrorIs(t, err, ErrUnknownSession)
	_, err = f.svc.Login(context.Background(), "nope", "a", "b")
	require.ErrorIs(t, err, ErrUnknownSession)
}

func TestSessionService_Login_BlankCredentials(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	ok, err := f.svc.Login(context.Background(), sess.ID, "  ", "pw")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.svc.Login(context.Background(), sess.ID, "ghost", "")
	require.NoError(t, err)
	require.False(t, ok)

	f.store.AssertNotCalled(t, "Fetch", mock.Anything)
}

func TestSessionService_Login_NewPlayer(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{}, nil).Once()

	ok, err := f.svc.Login(context.Background(), sess.ID, " witch ", "broom")
	require.NoError(t, err)
	require.True(t, ok)

	view, err := f.svc.Session(sess.ID)
	require.NoError(t, err)
	require.Equal(t, &PlayerView{Name: "witch"}, view.Player)

	f.store.AssertExpectations(t)
}

func TestSessionService_Login_MergesExisting(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{
		{Name: "witch", Score: 10, Coins: 4},
		{Name: "witch", Score: 30, Coins: 9},
	}, nil).Once()

	ok, err := f.svc.Login(context.Background(), sess.ID, "witch", "broom")
	require.NoError(t, err)
	require.True(t, ok)

	view, err := f.svc.Session(sess.ID)
	require.NoError(t, err)
	require.Equal(t, &PlayerView{Name: "witch", Score: 30, Coins: 9, Rank: 1}, view.Player)
}

func TestSessionService_Login_WrongPassword(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	hash, err := auth.HashPassword("broom")
	require.NoError(t, err)
	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{
		{Name: "witch", Password: hash, Score: 10, Coins: 4},
	}, nil).Once()

	ok, err := f.svc.Login(context.Background(), sess.ID, "witch", "mop")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.svc.Login(context.Background(), sess.ID, "witch", "broom")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSessionService_Login_FetchError(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	fetchErr := errors.New("sheet down")
	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord(nil), fetchErr).Once()

	ok, err := f.svc.Login(context.Background(), sess.ID, "witch", "broom")
	require.ErrorIs(t, err, fetchErr)
	require.False(t, ok)
}

func TestSessionService_GuestRound_NoSubmit(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	st, err := f.svc.StartRound(sess.ID)
	require.NoError(t, err)
	require.Equal(t, game.PhaseActive, st.Phase)

	advanceN(t, f.svc, sess.ID, 2)

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{}, nil).Once()

	out, err := f.svc.Fail(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, game.RoundResult{Rounds: 3, Score: 10, Candy: 10}, out.Result)
	require.Nil(t, out.Player)
	require.Nil(t, out.Settlement)

	f.store.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	f.store.AssertExpectations(t)
	require.Equal(t, 1, f.sink.leaderboardCount())

	last, ok := f.sink.lastRound(sess.ID)
	require.True(t, ok)
	require.Equal(t, game.PhaseIdle, last.Phase)
}

func TestSessionService_StartRound_Twice(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	_, err := f.svc.StartRound(sess.ID)
	require.NoError(t, err)
	_, err = f.svc.StartRound(sess.ID)
	require.ErrorIs(t, err, game.ErrBadPhase)
}

func TestSessionService_Fail_NotActive(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	_, err := f.svc.Fail(context.Background(), sess.ID)
	require.ErrorIs(t, err, game.ErrBadPhase)
	_, err = f.svc.Advance(context.Background(), sess.ID)
	require.ErrorIs(t, err, game.ErrBadPhase)
}

func TestSessionService_LoggedRound_SyncsPlayer(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{
		{Name: "witch", Score: 100, Coins: 4},
	}, nil)
	ok, err := f.svc.Login(context.Background(), sess.ID, "witch", "broom")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.StartRound(sess.ID)
	require.NoError(t, err)
	advanceN(t, f.svc, sess.ID, 3)

	f.store.On("Submit", mock.Anything, recordMatching("witch", 100, 19)).Return(nil).Once()

	out, err := f.svc.Fail(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, &PlayerView{Name: "witch", Score: 100, Coins: 19}, out.Player)

	f.store.AssertExpectations(t)
}

func TestSessionService_Challenge_Won(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{
		{Name: "me", Score: 10, Coins: 5},
		{Name: "them", Password: "their-hash", Score: 50, Coins: 30},
	}, nil)

	ok, err := f.svc.Login(context.Background(), sess.ID, "me", "pw")
	require.NoError(t, err)
	require.True(t, ok)

	ch, err := f.svc.SelectChallenge(sess.ID, "them")
	require.NoError(t, err)
	require.Equal(t, game.Challenge{TargetName: "them", BetCoins: 5, BetScore: 50}, ch)

	_, err = f.svc.StartRound(sess.ID)
	require.NoError(t, err)
	advanceN(t, f.svc, sess.ID, 7)

	f.store.On("Submit", mock.Anything, game.PlayerRecord{Name: "them", Password: "their-hash", Score: 50, Coins: 25}).Return(nil).Once()
	f.store.On("Submit", mock.Anything, recordMatching("me", 70, 45)).Return(nil).Once()

	out, err := f.svc.Fail(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, game.RoundResult{Rounds: 8, Score: 70, Candy: 35}, out.Result)
	require.Equal(t, &SettlementView{Won: true, Target: "them", BetCoins: 5, TargetCoins: 25}, out.Settlement)
	require.Equal(t, 45, out.Player.Coins)

	view, err := f.svc.Session(sess.ID)
	require.NoError(t, err)
	require.Nil(t, view.Challenge)

	f.store.AssertExpectations(t)
}

func TestSessionService_Challenge_LostOnTie(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{
		{Name: "me", Score: 1, Coins: 20},
		{Name: "them", Score: 10, Coins: 30},
	}, nil)

	ok, err := f.svc.Login(context.Background(), sess.ID, "me", "pw")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.svc.SelectChallenge(sess.ID, "them")
	require.NoError(t, err)

	_, err = f.svc.StartRound(sess.ID)
	require.NoError(t, err)
	advanceN(t, f.svc, sess.ID, 2)

	f.store.On("Submit", mock.Anything, recordMatching("them", 10, 50)).Return(nil).Once()
	f.store.On("Submit", mock.Anything, recordMatching("me", 10, 10)).Return(nil).Once()

	out, err := f.svc.Fail(context.Background(), sess.ID)
	require.NoError(t, err)
	require.False(t, out.Settlement.Won)

	f.store.AssertExpectations(t)
}

func TestSessionService_Challenge_TargetVanished(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{
		{Name: "me", Score: 10, Coins: 5},
		{Name: "them", Score: 50, Coins: 30},
	}, nil).Once()

	ok, err := f.svc.Login(context.Background(), sess.ID, "me", "pw")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.svc.SelectChallenge(sess.ID, "them")
	require.NoError(t, err)

	_, err = f.svc.StartRound(sess.ID)
	require.NoError(t, err)

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{
		{Name: "me", Score: 10, Coins: 5},
	}, nil)
	_, err = f.svc.Refresh(context.Background())
	require.NoError(t, err)

	f.store.On("Submit", mock.Anything, recordMatching("me", 10, 5)).Return(nil).Once()

	out, err := f.svc.Fail(context.Background(), sess.ID)
	require.ErrorIs(t, err, game.ErrNotFound)
	require.Nil(t, out.Settlement)
	require.Equal(t, 5, out.Player.Coins)

	f.store.AssertNotCalled(t, "Submit", mock.Anything, recordMatching("them", 50, 30))
	f.store.AssertExpectations(t)
}

func TestSessionService_SelectChallenge_Errors(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	_, err := f.svc.SelectChallenge(sess.ID, "them")
	require.ErrorIs(t, err, game.ErrNotLoggedIn)

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{
		{Name: "me", Score: 10, Coins: 5},
		{Name: "broke", Score: 10, Coins: 0},
	}, nil)
	ok, err := f.svc.Login(context.Background(), sess.ID, "me", "pw")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.SelectChallenge(sess.ID, "me")
	require.ErrorIs(t, err, game.ErrSelfChallenge)

	_, err = f.svc.SelectChallenge(sess.ID, "broke")
	require.ErrorIs(t, err, game.ErrNotFound)

	require.ErrorIs(t, f.svc.CancelChallenge(sess.ID), game.ErrNoChallenge)
}

func TestSessionService_CancelChallenge(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{
		{Name: "me", Score: 10, Coins: 5},
		{Name: "them", Score: 50, Coins: 30},
	}, nil)
	ok, err := f.svc.Login(context.Background(), sess.ID, "me", "pw")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.svc.SelectChallenge(sess.ID, "them")
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelChallenge(sess.ID))
	view, err := f.svc.Session(sess.ID)
	require.NoError(t, err)
	require.Nil(t, view.Challenge)
}

func TestSessionService_Logout(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	require.ErrorIs(t, f.svc.Logout(sess.ID), game.ErrNotLoggedIn)

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{}, nil)
	ok, err := f.svc.Login(context.Background(), sess.ID, "me", "pw")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.StartRound(sess.ID)
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.Logout(sess.ID), game.ErrBadPhase)

	f.store.On("Submit", mock.Anything, mock.Anything).Return(nil)
	_, err = f.svc.Fail(context.Background(), sess.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(sess.ID))
	view, err := f.svc.Session(sess.ID)
	require.NoError(t, err)
	require.Nil(t, view.Player)
}

func TestSessionService_Advance_AfterDeadline(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.CreateSession()

	_, err := f.svc.StartRound(sess.ID)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Second)
	st, err := f.svc.RoundState(sess.ID)
	require.NoError(t, err)
	require.InDelta(t, 3.0, st.Remaining, 1e-9)

	_, err = f.svc.Advance(context.Background(), sess.ID)
	require.NoError(t, err)

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{}, nil).Once()
	f.clock.Advance(5 * time.Second)

	st, err = f.svc.Advance(context.Background(), sess.ID)
	require.ErrorIs(t, err, game.ErrDeadlinePassed)
	require.Equal(t, game.PhaseIdle, st.Phase)

	f.store.AssertExpectations(t)
}

func TestSessionService_DeadlineTimerFailsRound(t *testing.T) {
	cfg := Config{
		Clock: systemClock{},
		Round: game.RoundConfig{
			BaseScoreTime:  0.05,
			MinRoundTime:   0.05,
			BaseScorePrize: 5,
			BaseCandyPrize: 5,
			MaxMultiplier:  8,
		},
	}
	f := newFixture(t, cfg)
	sess := f.svc.CreateSession()

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{}, nil).Once()

	_, err := f.svc.StartRound(sess.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, _ := f.sink.lastRound(sess.ID)
		return st.Phase == game.PhaseIdle
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return f.sink.leaderboardCount() == 1 }, time.Second, 10*time.Millisecond)
	f.store.AssertExpectations(t)
}

func TestSessionService_Refresh_PublishesRanking(t *testing.T) {
	f := newFixture(t, Config{})

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{
		{Name: "A", Score: 1, Coins: 1},
		{Name: "A", Score: 2, Coins: 2},
		{Name: "B", Score: 0, Coins: 3},
	}, nil).Once()

	entries, err := f.svc.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, []game.LeaderboardEntry{{Rank: 1, Name: "A", Coins: 2, Score: 2}}, entries)
	require.Equal(t, entries, f.svc.Leaderboard())
	require.Equal(t, 1, f.sink.leaderboardCount())

	p, ok := f.svc.Player("B")
	require.True(t, ok)
	require.Equal(t, PlayerView{Name: "B", Coins: 3}, p)

	_, ok = f.svc.Player("C")
	require.False(t, ok)
}

func TestSessionService_Refresh_Reschedules(t *testing.T) {
	f := newFixture(t, Config{RefreshEvery: 20 * time.Millisecond})

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord(nil), errors.New("timeout")).Once()
	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{}, nil)

	_, err := f.svc.Refresh(context.Background())
	require.Error(t, err)

	require.Eventually(t, func() bool { return f.sink.leaderboardCount() >= 1 }, time.Second, 5*time.Millisecond)
}

func liveContext() interface{} {
	return mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })
}

func loginWithChallenge(t *testing.T, f *fixture) string {
	t.Helper()
	sess := f.svc.CreateSession()

	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{
		{Name: "me", Score: 10, Coins: 5},
		{Name: "them", Score: 50, Coins: 30},
	}, nil)

	ok, err := f.svc.Login(context.Background(), sess.ID, "me", "pw")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.svc.SelectChallenge(sess.ID, "them")
	require.NoError(t, err)

	_, err = f.svc.StartRound(sess.ID)
	require.NoError(t, err)
	advanceN(t, f.svc, sess.ID, 7)
	return sess.ID
}

func TestSessionService_Fail_CancelledCallerStillSettles(t *testing.T) {
	f := newFixture(t, Config{})
	id := loginWithChallenge(t, f)

	f.store.On("Submit", liveContext(), recordMatching("them", 50, 25)).Return(nil).Once()
	f.store.On("Submit", liveContext(), recordMatching("me", 70, 45)).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := f.svc.Fail(ctx, id)
	require.NoError(t, err)
	require.True(t, out.Settlement.Won)

	f.store.AssertExpectations(t)
}

func TestSessionService_Fail_TargetWriteFailsKeepsBetOpen(t *testing.T) {
	f := newFixture(t, Config{})
	id := loginWithChallenge(t, f)

	writeErr := errors.New("sheet down")
	f.store.On("Submit", mock.Anything, recordMatching("them", 50, 25)).Return(writeErr).Once()
	f.store.On("Submit", mock.Anything, recordMatching("me", 70, 40)).Return(nil).Once()

	out, err := f.svc.Fail(context.Background(), id)
	require.ErrorIs(t, err, writeErr)
	require.Nil(t, out.Settlement)
	require.Equal(t, 40, out.Player.Coins)

	view, err := f.svc.Session(id)
	require.NoError(t, err)
	require.Equal(t, &game.Challenge{TargetName: "them", BetCoins: 5, BetScore: 50}, view.Challenge)

	f.store.AssertExpectations(t)
}

func TestSessionService_Sweep_DropsIdleSessions(t *testing.T) {
	f := newFixture(t, Config{SessionTTL: time.Hour})
	svc := f.svc.(*sessionService)

	idle := f.svc.CreateSession()
	busy := f.svc.CreateSession()

	f.clock.Advance(30 * time.Minute)
	_, err := f.svc.Session(busy.ID)
	require.NoError(t, err)

	f.clock.Advance(45 * time.Minute)
	require.Equal(t, 1, svc.sweep())

	_, err = f.svc.Session(idle.ID)
	require.ErrorIs(t, err, ErrUnknownSession)
	_, err = f.svc.Session(busy.ID)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	require.Equal(t, 1, svc.sweep())
	require.Zero(t, svc.sweep())
}

func TestSessionService_Refresh_SharesInFlightFetch(t *testing.T) {
	f := newFixture(t, Config{})

	started := make(chan struct{})
	release := make(chan struct{})
	f.store.On("Fetch", mock.Anything).Return([]game.PlayerRecord{
		{Name: "A", Score: 2, Coins: 2},
	}, nil).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Once()

	type result struct {
		entries []game.LeaderboardEntry
		err     error
	}
	results := make(chan result, 2)
	refresh := func() {
		entries, err := f.svc.Refresh(context.Background())
		results <- result{entries, err}
	}

	go refresh()
	<-started
	go refresh()
	// Let the second caller join the pending fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)

	want := []game.LeaderboardEntry{{Rank: 1, Name: "A", Coins: 2, Score: 2}}
	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		require.Equal(t, want, r.entries)
	}

	f.store.AssertNumberOfCalls(t, "Fetch", 1)
}
