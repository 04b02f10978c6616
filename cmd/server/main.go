package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ArtemMoroz51/devween/internal/app"
	"github.com/ArtemMoroz51/devween/internal/game"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional.
	_ = godotenv.Load()

	def := game.DefaultRoundConfig()
	cfg := app.Config{
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		StoreDriver: getenv("STORE_DRIVER", app.DriverPostgres),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getenv("SQLITE_PATH", "devween.db"),

		AdminToken:    os.Getenv("ADMIN_TOKEN"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		SessionTTL:    getenvDuration("SESSION_TTL", 24*time.Hour),

		LogLevel: getenv("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),

		RefreshEvery: getenvDuration("REFRESH_EVERY", 30*time.Second),
		Round: game.RoundConfig{
			BaseScoreTime:        getenvFloat("BASE_SCORE_TIME", def.BaseScoreTime),
			TimeDecreasePerRound: getenvFloat("TIME_DECREASE_PER_ROUND", def.TimeDecreasePerRound),
			MinRoundTime:         getenvFloat("MIN_ROUND_TIME", def.MinRoundTime),
			BaseScorePrize:       getenvInt("BASE_SCORE_PRIZE", def.BaseScorePrize),
			BaseCandyPrize:       getenvInt("BASE_CANDY_PRIZE", def.BaseCandyPrize),
			MaxMultiplier:        getenvInt("MAX_MULTIPLIER", def.MaxMultiplier),
			MultiplierWindow:     getenvFloat("MULTIPLIER_WINDOW", def.MultiplierWindow),
		},
	}

	if cfg.SessionSecret == "" {
		panic("SESSION_SECRET is required")
	}
	if cfg.StoreDriver == app.DriverPostgres && cfg.DatabaseURL == "" {
		panic("DATABASE_URL is required")
	}

	a, err := app.New(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = a.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		panic(err)
	}
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(k + ": " + err.Error())
	}
	return d
}

func getenvFloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		panic(k + ": " + err.Error())
	}
	return f
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(k + ": " + err.Error())
	}
	return n
}
