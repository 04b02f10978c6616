package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ArtemMoroz51/devween/internal/auth"
	"github.com/ArtemMoroz51/devween/internal/game"
	"github.com/ArtemMoroz51/devween/internal/service"
	"github.com/ArtemMoroz51/devween/internal/ws"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type loginReq struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type challengeReq struct {
	Target string `json:"target"`
}

type createSessionResp struct {
	SessionID string              `json:"sessionId"`
	Token     string              `json:"token"`
	Session   service.SessionView `json:"session"`
}

type loginResp struct {
	LoggedIn bool                `json:"loggedIn"`
	Session  service.SessionView `json:"session"`
}

func RegisterHandlers(r chi.Router, svc service.SessionService, tokens *auth.Tokens, hub *ws.Hub, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}

	r.Post("/session", func(w http.ResponseWriter, r *http.Request) {
		sess := svc.CreateSession()
		tok, err := tokens.Issue(sess.ID)
		if err != nil {
			svc.DropSession(sess.ID)
			log.Error("session token issue failed", zap.Error(err))
			http.Error(w, "token issue failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, createSessionResp{SessionID: sess.ID, Token: tok, Session: sess})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireSession(tokens, log))

		r.Get("/session", func(w http.ResponseWriter, r *http.Request) {
			v, err := svc.Session(sessionID(r))
			if err != nil {
				writeError(w, log, "get session", err)
				return
			}
			writeJSON(w, http.StatusOK, v)
		})

		r.Delete("/session", func(w http.ResponseWriter, r *http.Request) {
			svc.DropSession(sessionID(r))
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/session/login", func(w http.ResponseWriter, r *http.Request) {
			var req loginReq
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				log.Warn("login bad json", zap.Error(err))
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
			id := sessionID(r)
			ok, err := svc.Login(r.Context(), id, req.Name, req.Password)
			if err != nil {
				writeError(w, log, "login", err)
				return
			}
			v, err := svc.Session(id)
			if err != nil {
				writeError(w, log, "login", err)
				return
			}
			writeJSON(w, http.StatusOK, loginResp{LoggedIn: ok, Session: v})
		})

		r.Post("/session/logout", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.Logout(sessionID(r)); err != nil {
				writeError(w, log, "logout", err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/session/round", func(w http.ResponseWriter, r *http.Request) {
			st, err := svc.RoundState(sessionID(r))
			if err != nil {
				writeError(w, log, "round state", err)
				return
			}
			writeJSON(w, http.StatusOK, st)
		})

		r.Post("/session/round/start", func(w http.ResponseWriter, r *http.Request) {
			st, err := svc.StartRound(sessionID(r))
			if err != nil {
				writeError(w, log, "start round", err)
				return
			}
			writeJSON(w, http.StatusOK, st)
		})

		r.Post("/session/round/advance", func(w http.ResponseWriter, r *http.Request) {
			st, err := svc.Advance(r.Context(), sessionID(r))
			if errors.Is(err, game.ErrDeadlinePassed) {
				writeErrorResp(w, log, "advance", err, errorResp{Round: &st})
				return
			}
			if err != nil {
				writeError(w, log, "advance", err)
				return
			}
			writeJSON(w, http.StatusOK, st)
		})

		r.Post("/session/round/fail", func(w http.ResponseWriter, r *http.Request) {
			out, err := svc.Fail(r.Context(), sessionID(r))
			if err != nil && out.Result.Rounds > 0 {
				// The run ended; only its bookkeeping failed.
				writeErrorResp(w, log, "fail round", err, errorResp{Outcome: &out})
				return
			}
			if err != nil {
				writeError(w, log, "fail round", err)
				return
			}
			writeJSON(w, http.StatusOK, out)
		})

		r.Post("/session/challenge", func(w http.ResponseWriter, r *http.Request) {
			var req challengeReq
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				log.Warn("challenge bad json", zap.Error(err))
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
			ch, err := svc.SelectChallenge(sessionID(r), req.Target)
			if err != nil {
				writeError(w, log, "select challenge", err)
				return
			}
			writeJSON(w, http.StatusOK, ch)
		})

		r.Delete("/session/challenge", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.CancelChallenge(sessionID(r)); err != nil {
				writeError(w, log, "cancel challenge", err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/ws/session", func(w http.ResponseWriter, r *http.Request) {
			id := sessionID(r)
			st, err := svc.RoundState(id)
			if err != nil {
				writeError(w, log, "ws session", err)
				return
			}
			log.Info("ws connect attempt", zap.String("session", id))
			hub.ServeWS(w, r, ws.SessionTopic(id), ws.Envelope{
				Type:    ws.TypeRound,
				Payload: ws.RoundPayload{SessionID: id, State: st},
			})
		})
	})

	r.Get("/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Leaderboard())
	})

	r.Get("/players/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		p, ok := svc.Player(name)
		if !ok {
			log.Warn("player not found", zap.String("name", name))
			http.Error(w, "player not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, p)
	})

	r.Get("/ws/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		log.Info("ws connect attempt", zap.String("topic", ws.LeaderboardTopic))
		hub.ServeWS(w, r, ws.LeaderboardTopic)
	})
}
