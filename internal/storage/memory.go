package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ratekeeper/internal/models"
)

// MemoryStorage keeps the allow-list in process memory. Entries are lost on
// restart, which makes it the default for single-instance deployments that
// seed their allow-list from configuration.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]*models.AllowEntry
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		entries: make(map[string]*models.AllowEntry),
	}, nil
}

func (m *MemoryStorage) AllowEntries(ctx context.Context) ([]*models.AllowEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*models.AllowEntry, 0, len(m.entries))
	for _, e := range m.entries {
		// Return a copy to prevent external modification
		entryCopy := *e
		entries = append(entries, &entryCopy)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (m *MemoryStorage) GetAllowEntry(ctx context.Context, key string) (*models.AllowEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	entryCopy := *e
	return &entryCopy, nil
}

func (m *MemoryStorage) SaveAllowEntry(ctx context.Context, entry *models.AllowEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entryCopy := *entry
	if existing, ok := m.entries[entry.Key]; ok {
		entryCopy.CreatedAt = existing.CreatedAt
	} else if entryCopy.CreatedAt.IsZero() {
		entryCopy.CreatedAt = time.Now().UTC()
	}
	m.entries[entry.Key] = &entryCopy
	return nil
}

func (m *MemoryStorage) DeleteAllowEntry(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(m.entries, key)
	return nil
}

// Ping verifies the storage backend is reachable and operational.
func (m *MemoryStorage) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
