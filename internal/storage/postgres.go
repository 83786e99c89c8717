package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/deusflow/newspulse/internal/logger"
)

// PostgresStore keeps blobs in a PostgreSQL table so several instances can
// share one cache.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects and initializes the schema.
func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("PostgreSQL store connected")
	return s, nil
}

// initSchema creates the necessary tables if they don't exist
func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_blobs (
		key        TEXT PRIMARY KEY,
		data       BYTEA NOT NULL,
		written_at BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cache_blobs_written_at ON cache_blobs(written_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM cache_blobs WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (s *PostgresStore) ModTime(ctx context.Context, key string) (time.Time, error) {
	var nanos int64
	err := s.db.QueryRowContext(ctx, `SELECT written_at FROM cache_blobs WHERE key = $1`, key).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read stamp of %s: %w", key, err)
	}
	return time.Unix(0, nanos), nil
}

// Put upserts with INSERT ON CONFLICT to handle concurrent writers.
func (s *PostgresStore) Put(ctx context.Context, key string, data []byte, at time.Time) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	query := `
		INSERT INTO cache_blobs (key, data, written_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, written_at = EXCLUDED.written_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, data, at.UnixNano()); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_blobs WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, prefix string) ([]string, error) {
	pattern := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix) + "%"
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM cache_blobs WHERE key LIKE $1 ORDER BY key`, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			logger.Warn("Error scanning cache key", "error", err)
			continue
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
