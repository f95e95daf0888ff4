package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresStore keeps snapshots in a Postgres table, retaining a bounded
// history so a corrupted latest snapshot can be recovered by hand.
type PostgresStore struct {
	db      *sql.DB
	history int
}

// NewPostgresStore opens a connection pool and ensures the snapshot table
// exists. history is how many old snapshots to retain beyond the latest.
func NewPostgresStore(connectionString string, history int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("persist: open postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: ping postgres: %w", err)
	}

	if history < 0 {
		history = 0
	}
	store := &PostgresStore{db: db, history: history}
	if err := store.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS hub_snapshots (
			id BIGSERIAL PRIMARY KEY,
			taken_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			payload JSONB NOT NULL
		)`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("persist: create snapshot table: %w", err)
	}
	return nil
}

// Save inserts a new snapshot and prunes rows beyond the retention window.
func (s *PostgresStore) Save(ctx context.Context, snapshot []byte) error {
	const insert = `INSERT INTO hub_snapshots (payload) VALUES ($1)`
	if _, err := s.db.ExecContext(ctx, insert, snapshot); err != nil {
		return fmt.Errorf("persist: insert snapshot: %w", err)
	}

	const prune = `
		DELETE FROM hub_snapshots
		WHERE id NOT IN (
			SELECT id FROM hub_snapshots ORDER BY id DESC LIMIT $1
		)`
	if _, err := s.db.ExecContext(ctx, prune, s.history+1); err != nil {
		return fmt.Errorf("persist: prune snapshots: %w", err)
	}
	return nil
}

// Load returns the most recent snapshot.
func (s *PostgresStore) Load(ctx context.Context) ([]byte, bool, error) {
	const query = `SELECT payload FROM hub_snapshots ORDER BY id DESC LIMIT 1`

	var payload []byte
	err := s.db.QueryRowContext(ctx, query).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("persist: load snapshot: %w", err)
	}
	return payload, true, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
