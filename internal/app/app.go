package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ArtemMoroz51/devween/internal/auth"
	"github.com/ArtemMoroz51/devween/internal/game"
	"github.com/ArtemMoroz51/devween/internal/handler"
	"github.com/ArtemMoroz51/devween/internal/logger"
	"github.com/ArtemMoroz51/devween/internal/service"
	"github.com/ArtemMoroz51/devween/internal/storage"
	"github.com/ArtemMoroz51/devween/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type recordBackend interface {
	storage.RecordStore
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
}

type App struct {
	cfg    Config
	log    *zap.Logger
	db     *pgxpool.Pool
	sqlite *storage.SQLiteRecordStore
	hub    *ws.Hub
	svc    service.SessionService
	srv    *http.Server
}

func New(cfg Config) (*App, error) {
	l, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: l}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.hub = ws.NewHub(l)
	lb := game.NewLeaderboard()

	a.svc, err = service.NewSessionService(store, lb, a.hub, l, service.Config{
		Round:        cfg.Round,
		RefreshEvery: cfg.RefreshEvery,
		SessionTTL:   cfg.SessionTTL,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	adminSvc := service.NewAdminService(store, a.svc)
	tokens := auth.NewTokens(cfg.SessionSecret, cfg.SessionTTL)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	handler.RegisterHandlers(r, a.svc, tokens, a.hub, l)
	handler.RegisterAdminHandlers(r, adminSvc, cfg.AdminToken, l)

	a.srv = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (recordBackend, error) {
	var store recordBackend
	switch a.cfg.StoreDriver {
	case DriverPostgres, "":
		db, err := pgxpool.New(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.db = db
		store = storage.NewPostgresRecordStore(db)
	case DriverSQLite:
		s, err := storage.NewSQLiteRecordStore(a.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.sqlite = s
		store = s
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.StoreDriver)
	}

	backoff := retry.WithMaxRetries(6, retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			a.log.Warn("store not ready", zap.String("driver", a.cfg.StoreDriver), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store ping: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// Run loads the leaderboard and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.svc.Refresh(ctx); err != nil {
		a.log.Warn("initial leaderboard refresh failed", zap.Error(err))
	}

	a.log.Info("server started",
		zap.String("addr", a.cfg.HTTPAddr),
		zap.String("store", a.cfg.StoreDriver),
		zap.String("log_level", a.cfg.LogLevel),
		zap.String("log_file", a.cfg.LogFile),
	)

	errc := make(chan error, 1)
	go func() { errc <- a.srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Close() error {
	var errs error
	if a.svc != nil {
		a.svc.Close()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.sqlite != nil {
		errs = multierr.Append(errs, a.sqlite.Close())
	}
	if a.log != nil {
		errs = multierr.Append(errs, a.log.Sync())
	}
	return errs
}
