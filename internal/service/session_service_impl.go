package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ArtemMoroz51/devween/internal/auth"
	"github.com/ArtemMoroz51/devween/internal/game"
	"github.com/ArtemMoroz51/devween/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	refreshKey = "leaderboard"
	sweepKey   = "sweep"

	// Timers may fire a hair before the float countdown reaches zero.
	deadlineSlack = 0.005
)

type session struct {
	id       string
	lastSeen atomic.Int64

	mu        sync.Mutex
	player    *game.PlayerRecord
	challenge *game.Challenge
	engine    *game.RoundEngine
	lastTick  time.Time
}

type sessionService struct {
	store storage.RecordStore
	lb    *game.Leaderboard
	sink  Sink
	log   *zap.Logger
	cfg   Config

	sched  *scheduler
	flight singleflight.Group

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewSessionService(store storage.RecordStore, lb *game.Leaderboard, sink Sink, log *zap.Logger, cfg Config) (SessionService, error) {
	if cfg.Round == (game.RoundConfig{}) {
		cfg.Round = game.DefaultRoundConfig()
	}
	if err := cfg.Round.Validate(); err != nil {
		return nil, err
	}
	if cfg.RefreshEvery == 0 {
		cfg.RefreshEvery = 30 * time.Second
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	if lb == nil {
		lb = game.NewLeaderboard()
	}
	if sink == nil {
		sink = nopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &sessionService{
		store:    store,
		lb:       lb,
		sink:     sink,
		log:      log,
		cfg:      cfg,
		sched:    newScheduler(),
		sessions: make(map[string]*session),
	}
	s.scheduleSweep()
	return s, nil
}

func (s *sessionService) CreateSession() SessionView {
	sess := &session{id: uuid.NewString(), engine: game.NewRoundEngine()}
	sess.lastSeen.Store(s.cfg.Clock.Now().UnixNano())

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.log.Info("session created", zap.String("session", sess.id))

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess)
}

func (s *sessionService) Session(id string) (SessionView, error) {
	sess, err := s.get(id)
	if err != nil {
		return SessionView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess), nil
}

func (s *sessionService) DropSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	s.sched.Cancel(roundKey(id))
	s.log.Info("session dropped", zap.String("session", id))
}

// Login validates the credentials and binds the player to the session,
// merging progress from the newest stored record of that name. An unknown
// name starts a new player. Bad credentials report false, not an error.
func (s *sessionService) Login(ctx context.Context, id, name, password string) (bool, error) {
	sess, err := s.get(id)
	if err != nil {
		return false, err
	}

	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(password) == "" {
		return false, nil
	}

	if s.lb.RefreshedAt().IsZero() {
		if _, err := s.Refresh(ctx); err != nil {
			return false, err
		}
	}

	player := game.PlayerRecord{Name: name}
	if existing, ok := s.lb.FindByName(name); ok {
		if !auth.CheckPassword(existing.Password, password) {
			s.log.Info("login rejected", zap.String("session", id), zap.String("name", name))
			return false, nil
		}
		player.Password = existing.Password
		player.Score = existing.Score
		player.Coins = existing.Coins
	}
	if player.Password == "" {
		hash, err := auth.HashPassword(password)
		if err != nil {
			return false, err
		}
		player.Password = hash
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.engine.Phase() != game.PhaseIdle {
		return false, game.ErrBadPhase
	}
	sess.player = &player
	sess.challenge = nil

	s.log.Info("player logged in",
		zap.String("session", id),
		zap.String("name", name),
		zap.Int("score", player.Score),
		zap.Int("coins", player.Coins),
	)
	return true, nil
}

func (s *sessionService) Logout(id string) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.player == nil {
		return game.ErrNotLoggedIn
	}
	if sess.engine.Phase() != game.PhaseIdle {
		return game.ErrBadPhase
	}
	s.log.Info("player logged out", zap.String("session", id), zap.String("name", sess.player.Name))
	sess.player = nil
	sess.challenge = nil
	return nil
}

func (s *sessionService) StartRound(id string) (game.RoundState, error) {
	sess, err := s.get(id)
	if err != nil {
		return game.RoundState{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.engine.Start(s.cfg.Round); err != nil {
		return game.RoundState{}, err
	}
	sess.lastTick = s.cfg.Clock.Now()

	st := sess.engine.Snapshot()
	s.scheduleDeadline(sess, st.Remaining)
	s.sink.PublishRound(id, st)

	s.log.Info("round started", zap.String("session", id), zap.Float64("round_time", st.RoundTime))
	return st, nil
}

// Advance records a correct pick. If the countdown already ran out the run
// is finished as a failure and ErrDeadlinePassed is returned.
func (s *sessionService) Advance(ctx context.Context, id string) (game.RoundState, error) {
	sess, err := s.get(id)
	if err != nil {
		return game.RoundState{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.engine.Phase() != game.PhaseActive {
		return game.RoundState{}, game.ErrBadPhase
	}

	if s.tickLocked(sess) {
		_, ferr := s.finishLocked(ctx, sess)
		return sess.engine.Snapshot(), multierr.Append(game.ErrDeadlinePassed, ferr)
	}

	if err := sess.engine.Advance(); err != nil {
		return game.RoundState{}, err
	}

	st := sess.engine.Snapshot()
	s.scheduleDeadline(sess, st.Remaining)
	s.sink.PublishRound(id, st)

	s.log.Debug("round advanced",
		zap.String("session", id),
		zap.Int("round", st.Round),
		zap.Int("multiplier", st.Multiplier),
		zap.Int("score", st.Score),
	)
	return st, nil
}

func (s *sessionService) Fail(ctx context.Context, id string) (RoundOutcome, error) {
	sess, err := s.get(id)
	if err != nil {
		return RoundOutcome{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.engine.Fail(); err != nil {
		return RoundOutcome{}, err
	}
	return s.finishLocked(ctx, sess)
}

func (s *sessionService) RoundState(id string) (game.RoundState, error) {
	sess, err := s.get(id)
	if err != nil {
		return game.RoundState{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	st := sess.engine.Snapshot()
	if st.Phase == game.PhaseActive {
		elapsed := s.cfg.Clock.Now().Sub(sess.lastTick).Seconds()
		st.Remaining = max(0, st.Remaining-elapsed)
	}
	return st, nil
}

func (s *sessionService) SelectChallenge(id, target string) (game.Challenge, error) {
	sess, err := s.get(id)
	if err != nil {
		return game.Challenge{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.player == nil || sess.player.Name == "" {
		return game.Challenge{}, game.ErrNotLoggedIn
	}
	if sess.engine.Phase() != game.PhaseIdle {
		return game.Challenge{}, game.ErrBadPhase
	}

	entry, ok := s.lb.Entry(target)
	if !ok {
		return game.Challenge{}, &game.NotFoundError{Name: target}
	}
	ch, err := game.NewChallenge(*sess.player, entry)
	if err != nil {
		return game.Challenge{}, err
	}
	sess.challenge = &ch

	s.log.Info("challenge selected",
		zap.String("session", id),
		zap.String("target", ch.TargetName),
		zap.Int("bet_coins", ch.BetCoins),
		zap.Int("bet_score", ch.BetScore),
	)
	return ch, nil
}

func (s *sessionService) CancelChallenge(id string) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.challenge == nil {
		return game.ErrNoChallenge
	}
	if sess.engine.Phase() != game.PhaseIdle {
		return game.ErrBadPhase
	}
	sess.challenge = nil
	return nil
}

func (s *sessionService) Leaderboard() []game.LeaderboardEntry {
	return s.lb.Entries()
}

func (s *sessionService) Player(name string) (PlayerView, bool) {
	rec, ok := s.lb.FindByName(name)
	if !ok {
		return PlayerView{}, false
	}
	v := playerView(rec)
	if e, ok := s.lb.Entry(name); ok {
		v.Rank = e.Rank
	}
	return *v, true
}

// Refresh fetches every record, rebuilds the leaderboard and publishes it.
// Concurrent callers share one fetch. The periodic refresh is rescheduled
// whether or not the fetch succeeded.
func (s *sessionService) Refresh(ctx context.Context) ([]game.LeaderboardEntry, error) {
	v, err, shared := s.flight.Do(refreshKey, func() (interface{}, error) {
		defer s.scheduleRefresh()

		// Callers share this fetch, so one cancelled caller must not fail the rest.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
		defer cancel()

		raw, err := s.store.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		entries := s.lb.Refresh(raw)
		s.sink.PublishLeaderboard(entries)
		s.log.Debug("leaderboard refreshed", zap.Int("records", len(raw)), zap.Int("entries", len(entries)))
		return entries, nil
	})
	if err != nil {
		s.log.Warn("leaderboard refresh failed", zap.Bool("shared", shared), zap.Error(err))
		return nil, err
	}
	return slices.Clone(v.([]game.LeaderboardEntry)), nil
}

func (s *sessionService) Close() {
	s.sched.Stop()
}

func (s *sessionService) get(id string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	sess.lastSeen.Store(s.cfg.Clock.Now().UnixNano())
	return sess, nil
}

// tickLocked feeds the time since the last tick into the engine and reports
// whether the countdown ran out.
func (s *sessionService) tickLocked(sess *session) bool {
	now := s.cfg.Clock.Now()
	delta := now.Sub(sess.lastTick).Seconds()
	sess.lastTick = now
	return sess.engine.Tick(delta)
}

// finishLocked closes a failed run: candy and best score go to the player,
// an active challenge is settled and the target written back, then the
// player record is synced and the leaderboard refreshed. Guests only
// trigger the refresh.
func (s *sessionService) finishLocked(ctx context.Context, sess *session) (RoundOutcome, error) {
	s.sched.Cancel(roundKey(sess.id))

	res, err := sess.engine.End()
	if err != nil {
		return RoundOutcome{}, err
	}
	s.sink.PublishRound(sess.id, sess.engine.Snapshot())

	// The run is over; its writes must not die with the caller's request.
	ctx = context.WithoutCancel(ctx)

	out := RoundOutcome{Result: res}
	var errs error

	if sess.player != nil {
		player := game.ApplyRun(*sess.player, res)

		if sess.challenge != nil {
			settled, err := game.SettleAgainst(s.lb, player, res.Score, *sess.challenge)
			if err != nil {
				s.log.Error("challenge target missing", zap.String("session", sess.id), zap.String("target", sess.challenge.TargetName))
				errs = multierr.Append(errs, err)
			} else if err := s.submit(ctx, settled.Target); err != nil {
				// The bet stays open so the target never misses its side of it.
				s.log.Error("challenge settlement not written", zap.String("session", sess.id), zap.String("target", settled.Target.Name))
				errs = multierr.Append(errs, err)
			} else {
				player = settled.Player
				out.Settlement = &SettlementView{
					Won:         settled.Won,
					Target:      settled.Target.Name,
					BetCoins:    sess.challenge.BetCoins,
					TargetCoins: settled.Target.Coins,
				}
				s.log.Info("challenge settled",
					zap.String("session", sess.id),
					zap.String("target", settled.Target.Name),
					zap.Bool("won", settled.Won),
				)
				sess.challenge = nil
			}
		}

		sess.player = &player
		out.Player = playerView(player)
		if err := s.submit(ctx, player); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if _, err := s.Refresh(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}

	s.log.Info("round finished",
		zap.String("session", sess.id),
		zap.Int("rounds", res.Rounds),
		zap.Int("score", res.Score),
		zap.Int("candy", res.Candy),
	)
	return out, errs
}

func (s *sessionService) submit(ctx context.Context, rec game.PlayerRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.store.Submit(ctx, rec); err != nil {
		s.log.Error("record submit failed", zap.String("name", rec.Name), zap.Error(err))
		return err
	}
	return nil
}

func (s *sessionService) scheduleDeadline(sess *session, remaining float64) {
	d := time.Duration(remaining * float64(time.Second))
	s.sched.Schedule(roundKey(sess.id), d, func() { s.onDeadline(sess) })
}

func (s *sessionService) onDeadline(sess *session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.engine.Phase() != game.PhaseActive {
		return
	}
	if !s.tickLocked(sess) {
		if sess.engine.Snapshot().Remaining > deadlineSlack {
			return
		}
		_ = sess.engine.Fail()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()

	s.log.Info("round deadline passed", zap.String("session", sess.id))
	if _, err := s.finishLocked(ctx, sess); err != nil {
		s.log.Warn("finish after deadline failed", zap.String("session", sess.id), zap.Error(err))
	}
}

func (s *sessionService) scheduleRefresh() {
	if s.cfg.RefreshEvery < 0 {
		return
	}
	s.sched.Schedule(refreshKey, s.cfg.RefreshEvery, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
		defer cancel()
		_, _ = s.Refresh(ctx)
	})
}

func (s *sessionService) scheduleSweep() {
	if s.cfg.SessionTTL < 0 {
		return
	}
	s.sched.Schedule(sweepKey, min(s.cfg.SessionTTL, time.Minute), func() {
		s.sweep()
		s.scheduleSweep()
	})
}

// sweep drops sessions nobody has touched for SessionTTL and reports how
// many went.
func (s *sessionService) sweep() int {
	cutoff := s.cfg.Clock.Now().Add(-s.cfg.SessionTTL).UnixNano()

	var expired []string
	s.mu.RLock()
	for id, sess := range s.sessions {
		if sess.lastSeen.Load() < cutoff {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range expired {
		s.DropSession(id)
	}
	return len(expired)
}

func roundKey(sessionID string) string {
	return "round:" + sessionID
}

func (s *sessionService) viewLocked(sess *session) SessionView {
	v := SessionView{ID: sess.id, Round: sess.engine.Snapshot()}
	if sess.player != nil {
		v.Player = playerView(*sess.player)
		if e, ok := s.lb.Entry(sess.player.Name); ok {
			v.Player.Rank = e.Rank
		}
	}
	if sess.challenge != nil {
		ch := *sess.challenge
		v.Challenge = &ch
	}
	return v
}
