package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/ArtemMoroz51/devween/internal/game"
)

var ErrInvalidRecord = errors.New("invalid player record")

// RecordStore is the append-only log of player records. Fetch returns every
// version oldest first; Submit appends a newer version, so the latest record
// for a name is the current one.
type RecordStore interface {
	Fetch(ctx context.Context) ([]game.PlayerRecord, error)
	Submit(ctx context.Context, rec game.PlayerRecord) error
}

func validateRecord(rec game.PlayerRecord) error {
	if strings.TrimSpace(rec.Name) == "" || rec.Score < 0 || rec.Coins < 0 {
		return ErrInvalidRecord
	}
	return nil
}
