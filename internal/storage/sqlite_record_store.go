package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ArtemMoroz51/devween/internal/game"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteRecordStore keeps the record log in a local SQLite file, for
// single-host deployments and tests.
type SQLiteRecordStore struct {
	db *sql.DB
}

func NewSQLiteRecordStore(path string) (*SQLiteRecordStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	return &SQLiteRecordStore{db: db}, nil
}

func (s *SQLiteRecordStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s.db, goose.DialectSQLite3, "sqlite")
}

func (s *SQLiteRecordStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteRecordStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteRecordStore) Fetch(ctx context.Context) ([]game.PlayerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, password, score, coins
		FROM player_records
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]game.PlayerRecord, 0)
	for rows.Next() {
		var r game.PlayerRecord
		if err := rows.Scan(&r.Name, &r.Password, &r.Score, &r.Coins); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteRecordStore) Submit(ctx context.Context, rec game.PlayerRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO player_records (name, password, score, coins)
		VALUES (?, ?, ?, ?)
	`, rec.Name, rec.Password, rec.Score, rec.Coins)
	return err
}
