package game

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Rank builds the leaderboard from raw records ordered oldest to newest.
// The newest record per name wins, players without both score and coins are
// dropped, and the survivors are sorted ascending by (score, coins, name) with
// rank n-i, so among equal scores the player with fewer coins ranks worse.
// Entries are returned best rank first.
func Rank(raw []PlayerRecord) []LeaderboardEntry {
	latest := lo.UniqBy(lo.Reverse(slices.Clone(raw)), func(r PlayerRecord) string {
		return r.Name
	})
	ranked := lo.Filter(latest, func(r PlayerRecord, _ int) bool {
		return r.Coins > 0 && r.Score > 0
	})

	slices.SortFunc(ranked, func(a, b PlayerRecord) int {
		return cmp.Or(
			cmp.Compare(a.Score, b.Score),
			cmp.Compare(a.Coins, b.Coins),
			strings.Compare(a.Name, b.Name),
		)
	})

	n := len(ranked)
	out := make([]LeaderboardEntry, n)
	for i, r := range ranked {
		rank := n - i
		out[rank-1] = LeaderboardEntry{
			Rank:  rank,
			Name:  r.Name,
			Coins: r.Coins,
			Score: r.Score,
		}
	}
	return out
}

// FindByName returns the newest raw record with exactly this name. Records
// that Rank would filter out are still found.
func FindByName(raw []PlayerRecord, name string) (PlayerRecord, bool) {
	for i := len(raw) - 1; i >= 0; i-- {
		if raw[i].Name == name {
			return raw[i], true
		}
	}
	return PlayerRecord{}, false
}

// Leaderboard keeps the last fetched raw records and the ranking built from
// them. Every Refresh replaces both.
type Leaderboard struct {
	mu          sync.RWMutex
	raw         []PlayerRecord
	entries     []LeaderboardEntry
	refreshedAt time.Time
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{}
}

func (l *Leaderboard) Refresh(raw []PlayerRecord) []LeaderboardEntry {
	entries := Rank(raw)

	l.mu.Lock()
	l.raw = slices.Clone(raw)
	l.entries = entries
	l.refreshedAt = time.Now()
	l.mu.Unlock()

	return slices.Clone(entries)
}

func (l *Leaderboard) Entries() []LeaderboardEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.entries)
}

func (l *Leaderboard) Entry(name string) (LeaderboardEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.Name == name {
			return e, true
		}
	}
	return LeaderboardEntry{}, false
}

func (l *Leaderboard) FindByName(name string) (PlayerRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return FindByName(l.raw, name)
}

func (l *Leaderboard) RefreshedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.refreshedAt
}
