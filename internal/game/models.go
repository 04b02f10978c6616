package game

type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhaseActive Phase = "active"
	PhaseFailed Phase = "failed"
)

// PlayerRecord is one version of a player as kept by the record store.
// Password holds a bcrypt hash; records written before hashing was
// introduced carry an empty hash.
type PlayerRecord struct {
	Name     string `json:"name"`
	Password string `json:"-"`
	Score    int    `json:"score"`
	Coins    int    `json:"coins"`
}

type LeaderboardEntry struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Coins int    `json:"coins"`
	Score int    `json:"score"`
}

type RoundState struct {
	Phase      Phase   `json:"phase"`
	Round      int     `json:"round"`
	RoundTime  float64 `json:"roundTime"`
	Remaining  float64 `json:"remaining"`
	Multiplier int     `json:"multiplier"`
	Streak     int     `json:"streak"`
	Score      int     `json:"score"`
	Candy      int     `json:"candy"`
}

type RoundResult struct {
	Rounds int `json:"rounds"`
	Score  int `json:"score"`
	Candy  int `json:"candy"`
}
