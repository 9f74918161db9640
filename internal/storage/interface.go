package storage

import (
	"context"
	"time"

	"ratekeeper/internal/models"
)

// Storage persists the allow-list. It is read when the allow-list is loaded
// or reloaded and written by the admin API; it is never consulted on the
// rate-limiting hot path.
type Storage interface {
	// AllowEntries returns every entry ordered by key.
	AllowEntries(ctx context.Context) ([]*models.AllowEntry, error)

	// GetAllowEntry returns the entry for key or ErrNotFound.
	GetAllowEntry(ctx context.Context, key string) (*models.AllowEntry, error)

	// SaveAllowEntry inserts or updates an entry. CreatedAt of an existing
	// entry is preserved.
	SaveAllowEntry(ctx context.Context, entry *models.AllowEntry) error

	// DeleteAllowEntry removes the entry for key or returns ErrNotFound.
	DeleteAllowEntry(ctx context.Context, key string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// CacheTTL specifies how long the JSON backend trusts its in-memory copy
	CacheTTL string `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`

	// Pool settings for database backends
	MaxOpenConns    int           `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time,omitempty" yaml:"conn_max_idle_time,omitempty"`
}
