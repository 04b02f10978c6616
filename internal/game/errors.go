package game

import (
	"errors"
	"fmt"
)

var (
	ErrBadPhase       = errors.New("bad phase")
	ErrDeadlinePassed = errors.New("deadline passed")
	ErrInvalidConfig  = errors.New("invalid round config")
	ErrNotFound       = errors.New("player not found")
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrSelfChallenge  = errors.New("cannot challenge yourself")
	ErrNoChallenge    = errors.New("no active challenge")
)

// NotFoundError reports a player name missing from the latest record snapshot.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("player %q not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
