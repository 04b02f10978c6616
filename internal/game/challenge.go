package game

// Challenge is a coin wager against another leaderboard player, settled by
// the next finished run.
type Challenge struct {
	TargetName string `json:"targetName"`
	BetCoins   int    `json:"betCoins"`
	BetScore   int    `json:"betScore"`
}

// NewChallenge stakes the target's coins, capped at what the player holds,
// against the target's best score.
func NewChallenge(player PlayerRecord, target LeaderboardEntry) (Challenge, error) {
	if player.Name == target.Name {
		return Challenge{}, ErrSelfChallenge
	}
	return Challenge{
		TargetName: target.Name,
		BetCoins:   min(target.Coins, player.Coins),
		BetScore:   target.Score,
	}, nil
}

type Settlement struct {
	Won    bool         `json:"won"`
	Player PlayerRecord `json:"player"`
	Target PlayerRecord `json:"target"`
}

// Settle moves the bet between player and target. Beating the bet score
// wins; a tie loses. Coin balances never go below zero.
func Settle(player PlayerRecord, roundScore int, ch Challenge, target PlayerRecord) Settlement {
	if roundScore > ch.BetScore {
		player.Coins += ch.BetCoins
		target.Coins = max(0, target.Coins-ch.BetCoins)
		return Settlement{Won: true, Player: player, Target: target}
	}
	player.Coins = max(0, player.Coins-ch.BetCoins)
	target.Coins += ch.BetCoins
	return Settlement{Won: false, Player: player, Target: target}
}

// SettleAgainst looks the target up in the latest raw records before
// settling. A missing target aborts with *NotFoundError and no coins move.
func SettleAgainst(lb *Leaderboard, player PlayerRecord, roundScore int, ch Challenge) (Settlement, error) {
	target, ok := lb.FindByName(ch.TargetName)
	if !ok {
		return Settlement{Player: player}, &NotFoundError{Name: ch.TargetName}
	}
	return Settle(player, roundScore, ch, target), nil
}

// ApplyRun folds a finished run into the player's record: candy becomes
// coins and the best score is kept.
func ApplyRun(player PlayerRecord, res RoundResult) PlayerRecord {
	player.Coins += res.Candy
	player.Score = max(player.Score, res.Score)
	return player
}
