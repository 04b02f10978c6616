package app

import (
	"time"

	"github.com/ArtemMoroz51/devween/internal/game"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	HTTPAddr string

	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	AdminToken    string
	SessionSecret string
	SessionTTL    time.Duration

	LogLevel string
	LogFile  string

	RefreshEvery time.Duration
	Round        game.RoundConfig
}
