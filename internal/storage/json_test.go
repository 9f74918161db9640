package storage

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"ratekeeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONStorage(t *testing.T) {
	runStorageContract(t, func(t *testing.T) Storage {
		s, err := NewJSONStorage(Config{Type: "json", Path: filepath.Join(t.TempDir(), "allowlist.json")})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestNewJSONStorage(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "test.json")

	storage, err := NewJSONStorage(Config{Type: "json", Path: filePath, CacheTTL: "1m"})
	require.NoError(t, err)
	defer storage.Close()

	assert.FileExists(t, filePath)
	assert.Equal(t, time.Minute, storage.cacheTTL)

	_, err = NewJSONStorage(Config{Type: "json"})
	assert.Error(t, err)
}

func TestNewJSONStorage_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on Windows")
	}
	filePath := filepath.Join(t.TempDir(), "subdir", "test.json")

	storage, err := NewJSONStorage(Config{Type: "json", Path: filePath})
	require.NoError(t, err)
	defer storage.Close()

	dirInfo, err := os.Stat(filepath.Dir(filePath))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())

	fileInfo, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fileInfo.Mode().Perm())
}

func TestJSONStorage_PersistsAcrossInstances(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "allowlist.json")
	ctx := context.Background()

	first, err := NewJSONStorage(Config{Type: "json", Path: filePath})
	require.NoError(t, err)
	require.NoError(t, first.SaveAllowEntry(ctx, &models.AllowEntry{Key: "198.51.100.1", Note: "partner"}))
	require.NoError(t, first.Close())

	second, err := NewJSONStorage(Config{Type: "json", Path: filePath})
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetAllowEntry(ctx, "198.51.100.1")
	require.NoError(t, err)
	assert.Equal(t, "partner", got.Note)
}

func TestJSONStorage_CorruptFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "allowlist.json")
	require.NoError(t, os.WriteFile(filePath, []byte("{not json"), 0600))

	_, err := NewJSONStorage(Config{Type: "json", Path: filePath})
	assert.ErrorContains(t, err, "failed to unmarshal JSON")
}
