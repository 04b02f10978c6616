package service

import (
	"context"
	"strings"

	"github.com/ArtemMoroz51/devween/internal/game"
	"github.com/ArtemMoroz51/devween/internal/storage"
)

type RecordInput struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
	Coins int    `json:"coins"`
}

type Refresher interface {
	Refresh(ctx context.Context) ([]game.LeaderboardEntry, error)
}

type AdminService interface {
	ListRecords(ctx context.Context, name string) ([]PlayerView, error)
	CorrectRecord(ctx context.Context, in RecordInput) (PlayerView, error)
	ForceRefresh(ctx context.Context) ([]game.LeaderboardEntry, error)
}

type adminService struct {
	store storage.RecordStore
	ref   Refresher
}

func NewAdminService(store storage.RecordStore, ref Refresher) AdminService {
	return &adminService{store: store, ref: ref}
}

// ListRecords returns the raw record log, oldest first, optionally only the
// versions of one player.
func (a *adminService) ListRecords(ctx context.Context, name string) ([]PlayerView, error) {
	raw, err := a.store.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	out := make([]PlayerView, 0, len(raw))
	for _, r := range raw {
		if name != "" && r.Name != name {
			continue
		}
		out = append(out, *playerView(r))
	}
	return out, nil
}

// CorrectRecord appends a new version of an existing player with the given
// score and coins, keeping the stored password hash.
func (a *adminService) CorrectRecord(ctx context.Context, in RecordInput) (PlayerView, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Score < 0 || in.Coins < 0 {
		return PlayerView{}, storage.ErrInvalidRecord
	}

	raw, err := a.store.Fetch(ctx)
	if err != nil {
		return PlayerView{}, err
	}
	cur, ok := game.FindByName(raw, in.Name)
	if !ok {
		return PlayerView{}, &game.NotFoundError{Name: in.Name}
	}

	cur.Score = in.Score
	cur.Coins = in.Coins
	if err := a.store.Submit(ctx, cur); err != nil {
		return PlayerView{}, err
	}
	return *playerView(cur), nil
}

func (a *adminService) ForceRefresh(ctx context.Context) ([]game.LeaderboardEntry, error) {
	return a.ref.Refresh(ctx)
}
