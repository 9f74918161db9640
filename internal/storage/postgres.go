package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ratekeeper/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS allow_entries (
	key        TEXT PRIMARY KEY,
	note       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStorage implements the Storage interface on a pgx connection pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects, verifies the connection and creates the
// schema if needed.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(min(config.MaxIdleConns, config.MaxOpenConns))
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}
	if config.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func (ps *PostgresStorage) AllowEntries(ctx context.Context) ([]*models.AllowEntry, error) {
	rows, err := ps.pool.Query(ctx, `SELECT key, note, created_at FROM allow_entries ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query allow entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[models.AllowEntry])
	if err != nil {
		return nil, fmt.Errorf("failed to collect allow entries: %w", err)
	}
	return entries, nil
}

func (ps *PostgresStorage) GetAllowEntry(ctx context.Context, key string) (*models.AllowEntry, error) {
	rows, err := ps.pool.Query(ctx, `SELECT key, note, created_at FROM allow_entries WHERE key = $1`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get allow entry: %w", err)
	}
	entry, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[models.AllowEntry])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get allow entry: %w", err)
	}
	return entry, nil
}

func (ps *PostgresStorage) SaveAllowEntry(ctx context.Context, entry *models.AllowEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := ps.pool.Exec(ctx, `
		INSERT INTO allow_entries (key, note, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET note = EXCLUDED.note`,
		entry.Key, entry.Note, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save allow entry: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) DeleteAllowEntry(ctx context.Context, key string) error {
	tag, err := ps.pool.Exec(ctx, `DELETE FROM allow_entries WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete allow entry %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

// Ping verifies the database connection is alive.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}
