// Package allowlist keeps the persisted allow-list and the in-memory key set
// consulted by the rate limiter in step.
package allowlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ratekeeper/internal/models"
	"ratekeeper/internal/ratelimit"
	"ratekeeper/internal/storage"
)

// Service owns the allow-list for one limiter key type.
type Service[K comparable] struct {
	storage storage.Storage
	set     *ratelimit.KeySet[K]
	codec   KeyCodec[K]
	logger  *slog.Logger

	// mu orders writes so storage and set are updated in the same sequence.
	mu sync.Mutex
}

var _ ServiceInterface = (*Service[string])(nil)

// NewService creates a service writing to st and publishing into set.
func NewService[K comparable](st storage.Storage, set *ratelimit.KeySet[K], codec KeyCodec[K], logger *slog.Logger) *Service[K] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service[K]{
		storage: st,
		set:     set,
		codec:   codec,
		logger:  logger,
	}
}

// Set returns the key set fed by this service.
func (s *Service[K]) Set() *ratelimit.KeySet[K] {
	return s.set
}

// Load replaces the key set with the stored entries. Entries whose key does
// not parse for this key type are logged and skipped.
func (s *Service[K]) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.storage.AllowEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load allow-list: %w", err)
	}

	keys := make([]K, 0, len(entries))
	for _, e := range entries {
		k, err := s.codec.Parse(e.Key)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping invalid allow-list entry", "key", e.Key, "error", err)
			continue
		}
		keys = append(keys, k)
	}

	s.set.Replace(keys)

	s.logger.DebugContext(ctx, "Allow-list loaded", "entries", len(keys))
	return nil
}

// Seed stores keys that are not yet present. Existing entries keep their
// notes.
func (s *Service[K]) Seed(ctx context.Context, keys []string) error {
	for _, raw := range keys {
		k, err := s.codec.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid seed entry: %w", err)
		}
		canonical := s.codec.Format(k)
		_, err = s.storage.GetAllowEntry(ctx, canonical)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to check seed entry %s: %w", canonical, err)
		}
		entry := &models.AllowEntry{Key: canonical, Note: "seeded from configuration"}
		if err := s.storage.SaveAllowEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to save seed entry %s: %w", canonical, err)
		}
	}
	return nil
}

func (s *Service[K]) List(ctx context.Context) (*models.ListAllowEntriesResponse, error) {
	entries, err := s.storage.AllowEntries(ctx)
	if err != nil {
		return nil, NewInternalError("failed to list allow-list entries", err)
	}

	resp := &models.ListAllowEntriesResponse{
		Entries:    make([]models.AllowEntry, 0, len(entries)),
		TotalCount: len(entries),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, *e)
	}
	return resp, nil
}

func (s *Service[K]) Add(ctx context.Context, req *models.AddAllowEntryRequest) (*models.AllowEntry, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid allow-list entry", err)
	}

	k, err := s.codec.Parse(req.Key)
	if err != nil {
		return nil, NewInvalidRequestError("key does not match the configured extractor", err)
	}

	entry := &models.AllowEntry{
		Key:       s.codec.Format(k),
		Note:      req.Note,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.SaveAllowEntry(ctx, entry); err != nil {
		return nil, NewInternalError("failed to save allow-list entry", err)
	}
	s.set.Add(k)

	saved, err := s.storage.GetAllowEntry(ctx, entry.Key)
	if err != nil {
		return entry, nil
	}

	s.logger.InfoContext(ctx, "Allow-list entry added", "key", entry.Key)
	return saved, nil
}

func (s *Service[K]) Remove(ctx context.Context, key string) error {
	k, err := s.codec.Parse(key)
	if err != nil {
		return NewInvalidRequestError("key does not match the configured extractor", err)
	}
	canonical := s.codec.Format(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.DeleteAllowEntry(ctx, canonical); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError(canonical)
		}
		return NewInternalError("failed to delete allow-list entry", err)
	}
	s.set.Remove(k)

	s.logger.InfoContext(ctx, "Allow-list entry removed", "key", canonical)
	return nil
}

// Run reloads the allow-list every interval until ctx is cancelled. It picks
// up entries written by other instances sharing the same storage.
func (s *Service[K]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Load(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "Allow-list reload failed", "error", err)
			}
		}
	}
}
