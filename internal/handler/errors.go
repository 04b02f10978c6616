package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ArtemMoroz51/devween/internal/game"
	"github.com/ArtemMoroz51/devween/internal/service"
	"github.com/ArtemMoroz51/devween/internal/storage"
	"go.uber.org/zap"
)

func statusFor(err error) int {
	switch {
	// A run that timed out reports that first, even if settling it failed too.
	case errors.Is(err, game.ErrDeadlinePassed):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnknownSession):
		return http.StatusUnauthorized
	case errors.Is(err, game.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrBadPhase):
		return http.StatusConflict
	case errors.Is(err, game.ErrNotLoggedIn),
		errors.Is(err, game.ErrSelfChallenge),
		errors.Is(err, game.ErrNoChallenge),
		errors.Is(err, storage.ErrInvalidRecord):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

type errorResp struct {
	Error   string                `json:"error"`
	Round   *game.RoundState      `json:"round,omitempty"`
	Outcome *service.RoundOutcome `json:"outcome,omitempty"`
}

func writeError(w http.ResponseWriter, log *zap.Logger, op string, err error) {
	writeErrorResp(w, log, op, err, errorResp{})
}

// writeErrorResp reports err along with whatever state the operation still
// produced.
func writeErrorResp(w http.ResponseWriter, log *zap.Logger, op string, err error, resp errorResp) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Error(op+" failed", zap.Error(err))
	} else {
		log.Warn(op+" failed", zap.Int("status", code), zap.Error(err))
	}
	resp.Error = err.Error()
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
