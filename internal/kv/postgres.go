package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore maps the record contract onto a single key-value table. It is
// the backend of choice when the deployment already runs Postgres and wants
// durable records without the object store round trip.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the records table exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("kv: connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS shotpack_records (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`)
	if err != nil {
		return fmt.Errorf("kv: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM shotpack_records WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv: postgres get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO shotpack_records (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW();`, key, value)
	if err != nil {
		return fmt.Errorf("kv: postgres set %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM shotpack_records WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("kv: postgres delete %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM shotpack_records WHERE key LIKE $1 || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("kv: postgres list %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("kv: postgres scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

var _ Store = (*PostgresStore)(nil)
