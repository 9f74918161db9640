package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ratekeeper/internal/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS allow_entries (
	key        TEXT PRIMARY KEY,
	note       TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
)`

// SQLiteStorage stores the allow-list in a SQLite database through the pure
// Go modernc.org/sqlite driver.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens the database and creates the schema if needed.
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY under concurrent admin writes.
	db.SetMaxOpenConns(1)
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (ss *SQLiteStorage) AllowEntries(ctx context.Context) ([]*models.AllowEntry, error) {
	rows, err := ss.db.QueryContext(ctx, `SELECT key, note, created_at FROM allow_entries ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query allow entries: %w", err)
	}
	defer rows.Close()

	entries := []*models.AllowEntry{}
	for rows.Next() {
		entry, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate allow entries: %w", err)
	}
	return entries, nil
}

func (ss *SQLiteStorage) GetAllowEntry(ctx context.Context, key string) (*models.AllowEntry, error) {
	row := ss.db.QueryRowContext(ctx, `SELECT key, note, created_at FROM allow_entries WHERE key = ?`, key)
	entry, err := scanSQLiteEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return entry, err
}

func (ss *SQLiteStorage) SaveAllowEntry(ctx context.Context, entry *models.AllowEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := ss.db.ExecContext(ctx, `
		INSERT INTO allow_entries (key, note, created_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET note = excluded.note`,
		entry.Key, entry.Note, formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save allow entry: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) DeleteAllowEntry(ctx context.Context, key string) error {
	res, err := ss.db.ExecContext(ctx, `DELETE FROM allow_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete allow entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete allow entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEntry(row rowScanner) (*models.AllowEntry, error) {
	var (
		entry     models.AllowEntry
		createdAt string
	)
	if err := row.Scan(&entry.Key, &entry.Note, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan allow entry: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at of %s: %w", entry.Key, err)
	}
	entry.CreatedAt = t
	return &entry, nil
}

// SQLite has no timestamp type; times are stored as RFC 3339 text.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
