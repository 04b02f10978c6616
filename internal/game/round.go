package game

import (
	"fmt"
	"math"
)

// RoundConfig tunes a run of rounds. Times are in seconds.
type RoundConfig struct {
	BaseScoreTime        float64 `json:"baseScoreTime"`
	TimeDecreasePerRound float64 `json:"timeDecreasePerRound"`
	MinRoundTime         float64 `json:"minRoundTime"`
	BaseScorePrize       int     `json:"baseScorePrize"`
	BaseCandyPrize       int     `json:"baseCandyPrize"`
	MaxMultiplier        int     `json:"maxMultiplier"`

	// MultiplierWindow is the fraction of a round's time within which a
	// correct pick still counts toward the multiplier streak. Later picks
	// score but reset the multiplier. Zero disables the window.
	MultiplierWindow float64 `json:"multiplierWindow"`
}

func DefaultRoundConfig() RoundConfig {
	return RoundConfig{
		BaseScoreTime:        5,
		TimeDecreasePerRound: 0.1,
		MinRoundTime:         1,
		BaseScorePrize:       5,
		BaseCandyPrize:       5,
		MaxMultiplier:        8,
	}
}

func (c RoundConfig) Validate() error {
	switch {
	case c.MaxMultiplier <= 0 || c.MaxMultiplier&(c.MaxMultiplier-1) != 0:
		return fmt.Errorf("%w: max multiplier %d is not a positive power of two", ErrInvalidConfig, c.MaxMultiplier)
	case c.BaseScoreTime <= 0 || c.MinRoundTime <= 0:
		return fmt.Errorf("%w: round times must be positive", ErrInvalidConfig)
	case c.MinRoundTime > c.BaseScoreTime:
		return fmt.Errorf("%w: min round time above base time", ErrInvalidConfig)
	case c.TimeDecreasePerRound < 0:
		return fmt.Errorf("%w: negative time decrease", ErrInvalidConfig)
	case c.BaseScorePrize < 0 || c.BaseCandyPrize < 0:
		return fmt.Errorf("%w: negative prize", ErrInvalidConfig)
	case c.MultiplierWindow < 0 || c.MultiplierWindow > 1:
		return fmt.Errorf("%w: multiplier window outside [0,1]", ErrInvalidConfig)
	}
	return nil
}

// RoundEngine runs one player's sequence of rounds: Start, any number of
// Advance calls, then Fail and End. It does no I/O and is not safe for
// concurrent use; the owner serializes calls.
type RoundEngine struct {
	cfg   RoundConfig
	phase Phase
	round int

	roundTime float64
	remaining float64
	elapsed   float64

	multiplier int
	streak     int
	score      int
	candy      int
}

func NewRoundEngine() *RoundEngine {
	return &RoundEngine{phase: PhaseIdle, multiplier: 1}
}

func (e *RoundEngine) Phase() Phase { return e.phase }

func (e *RoundEngine) Start(cfg RoundConfig) error {
	if e.phase != PhaseIdle {
		return ErrBadPhase
	}
	e.cfg = cfg
	e.phase = PhaseActive
	e.round = 1
	e.score = 0
	e.candy = 0
	e.streak = 0
	e.multiplier = 1
	e.roundTime = cfg.BaseScoreTime
	e.restartCountdown()
	return nil
}

// Tick consumes delta seconds of the running countdown. It reports true when
// the countdown ran out, in which case the round has already been failed.
func (e *RoundEngine) Tick(delta float64) bool {
	if e.phase != PhaseActive || delta <= 0 {
		return false
	}
	e.elapsed += delta
	e.remaining -= delta
	if e.remaining > 0 {
		return false
	}
	e.remaining = 0
	e.fail()
	return true
}

func (e *RoundEngine) Advance() error {
	if e.phase != PhaseActive {
		return ErrBadPhase
	}

	inWindow := e.cfg.MultiplierWindow == 0 || e.elapsed <= e.cfg.MultiplierWindow*e.roundTime

	e.roundTime = math.Max(e.cfg.MinRoundTime, e.roundTime-e.cfg.TimeDecreasePerRound)
	e.candy += e.cfg.BaseCandyPrize
	e.score += e.cfg.BaseScorePrize * e.multiplier

	if inWindow {
		e.streak++
		// >= so a missed tick cannot strand the streak one below the threshold.
		if e.multiplier < e.cfg.MaxMultiplier && e.streak >= e.multiplier*2 {
			e.multiplier *= 2
			e.streak = 0
		}
	} else {
		e.streak = 0
		e.multiplier = 1
	}

	e.round++
	e.restartCountdown()
	return nil
}

func (e *RoundEngine) Fail() error {
	if e.phase != PhaseActive {
		return ErrBadPhase
	}
	e.fail()
	return nil
}

// End returns the totals of a failed run and puts the engine back to idle.
func (e *RoundEngine) End() (RoundResult, error) {
	if e.phase != PhaseFailed {
		return RoundResult{}, ErrBadPhase
	}
	res := RoundResult{Rounds: e.round, Score: e.score, Candy: e.candy}
	e.phase = PhaseIdle
	return res, nil
}

func (e *RoundEngine) Snapshot() RoundState {
	return RoundState{
		Phase:      e.phase,
		Round:      e.round,
		RoundTime:  e.roundTime,
		Remaining:  e.remaining,
		Multiplier: e.multiplier,
		Streak:     e.streak,
		Score:      e.score,
		Candy:      e.candy,
	}
}

func (e *RoundEngine) fail() {
	e.streak = 0
	e.multiplier = 1
	e.phase = PhaseFailed
}

func (e *RoundEngine) restartCountdown() {
	e.remaining = e.roundTime
	e.elapsed = 0
}
