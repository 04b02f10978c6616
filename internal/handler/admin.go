package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ArtemMoroz51/devween/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const adminTimeout = 5 * time.Second

func RegisterAdminHandlers(r chi.Router, admin service.AdminService, adminToken string, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdminToken(adminToken))

		r.Post("/refresh", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
			defer cancel()

			entries, err := admin.ForceRefresh(ctx)
			if err != nil {
				writeError(w, log, "admin refresh", err)
				return
			}
			log.Info("leaderboard refreshed by admin", zap.Int("entries", len(entries)))
			writeJSON(w, http.StatusOK, entries)
		})

		r.Get("/records", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
			defer cancel()

			name := r.URL.Query().Get("name")
			rows, err := admin.ListRecords(ctx, name)
			if err != nil {
				writeError(w, log, "admin list records", err)
				return
			}
			log.Info("records listed", zap.String("name", name), zap.Int("count", len(rows)))
			writeJSON(w, http.StatusOK, rows)
		})

		r.Post("/records", func(w http.ResponseWriter, r *http.Request) {
			var in service.RecordInput
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				log.Warn("admin correct record bad json", zap.Error(err))
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
			defer cancel()

			row, err := admin.CorrectRecord(ctx, in)
			if err != nil {
				writeError(w, log, "admin correct record", err)
				return
			}
			log.Info("record corrected", zap.String("name", row.Name), zap.Int("score", row.Score), zap.Int("coins", row.Coins))
			writeJSON(w, http.StatusOK, row)
		})
	})
}
