package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ratekeeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStorageContract exercises the behavior every backend must share.
func runStorageContract(t *testing.T, newStorage func(t *testing.T) Storage) {
	t.Run("empty", func(t *testing.T) {
		s := newStorage(t)
		entries, err := s.AllowEntries(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})

	t.Run("save get list", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		require.NoError(t, s.SaveAllowEntry(ctx, &models.AllowEntry{Key: "10.0.0.2", Note: "b"}))
		require.NoError(t, s.SaveAllowEntry(ctx, &models.AllowEntry{Key: "10.0.0.1", Note: "a"}))

		got, err := s.GetAllowEntry(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, "a", got.Note)
		assert.False(t, got.CreatedAt.IsZero())

		entries, err := s.AllowEntries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "10.0.0.1", entries[0].Key)
		assert.Equal(t, "10.0.0.2", entries[1].Key)
	})

	t.Run("update keeps created_at", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, s.SaveAllowEntry(ctx, &models.AllowEntry{Key: "token", Note: "old", CreatedAt: created}))
		require.NoError(t, s.SaveAllowEntry(ctx, &models.AllowEntry{Key: "token", Note: "new"}))

		got, err := s.GetAllowEntry(ctx, "token")
		require.NoError(t, err)
		assert.Equal(t, "new", got.Note)
		assert.True(t, created.Equal(got.CreatedAt), "created_at %s", got.CreatedAt)
	})

	t.Run("returned entries are copies", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		require.NoError(t, s.SaveAllowEntry(ctx, &models.AllowEntry{Key: "k", Note: "n"}))

		got, err := s.GetAllowEntry(ctx, "k")
		require.NoError(t, err)
		got.Note = "mutated"

		again, err := s.GetAllowEntry(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "n", again.Note)
	})

	t.Run("not found", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		_, err := s.GetAllowEntry(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteAllowEntry(ctx, "missing"), ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		require.NoError(t, s.SaveAllowEntry(ctx, &models.AllowEntry{Key: "k"}))
		require.NoError(t, s.DeleteAllowEntry(ctx, "k"))

		_, err := s.GetAllowEntry(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rejects invalid entry", func(t *testing.T) {
		s := newStorage(t)
		assert.Error(t, s.SaveAllowEntry(context.Background(), &models.AllowEntry{Key: " "}))
	})

	t.Run("concurrent saves", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.SaveAllowEntry(ctx, &models.AllowEntry{Key: fmt.Sprintf("key-%02d", i)}))
			}(i)
		}
		wg.Wait()

		entries, err := s.AllowEntries(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 10)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStorage(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
