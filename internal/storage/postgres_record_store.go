package storage

import (
	"context"

	"github.com/ArtemMoroz51/devween/internal/game"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRecordStore struct {
	db *pgxpool.Pool
}

func NewPostgresRecordStore(db *pgxpool.Pool) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

func (s *PostgresRecordStore) Migrate(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(s.db)
	defer sqlDB.Close()
	return migrate(ctx, sqlDB, goose.DialectPostgres, "postgres")
}

func (s *PostgresRecordStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresRecordStore) Fetch(ctx context.Context) ([]game.PlayerRecord, error) {
	rows, err := s.db.Query(ctx, `
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

func (s *PostgresRecordStore) Submit(ctx context.Context, rec game.PlayerRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO player_records (name, password, score, coins)
		VALUES ($1, $2, $3, $4)
	`, rec.Name, rec.Password, rec.Score, rec.Coins)
	return err
}
