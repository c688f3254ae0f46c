package store

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresStore keeps each collection as a JSONB row in the collections
// table (created by database.InitPostgresTables).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, name string) ([]byte, int64, error) {
	var payload []byte
	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, version FROM collections WHERE name = $1
	`, name).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrCollectionNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return payload, version, nil
}

func (s *PostgresStore) Save(ctx context.Context, name string, payload []byte, expected int64) (int64, error) {
	var res sql.Result
	var err error
	if expected == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO collections (name, payload, version, updated_at)
			VALUES ($1, $2, 1, NOW())
			ON CONFLICT (name) DO NOTHING
		`, name, string(payload))
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE collections SET payload = $2, version = version + 1, updated_at = NOW()
			WHERE name = $1 AND version = $3
		`, name, string(payload), expected)
	}
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}
	return expected + 1, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
