package arrowstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/AgriDx-Engine/cache"
)

func encoded(t *testing.T, url string, data string) []byte {
	t.Helper()
	raw, err := cache.EncodeEntry(&cache.Entry{
		Data:      []byte(data),
		Timestamp: time.Now().UnixMilli(),
		URL:       url,
		Method:    "GET",
		Params:    "{}",
	})
	require.NoError(t, err)
	return raw
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "api.arrow")

	s := New(path)
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Put(ctx, "apicache:a", encoded(t, "/api/crops", "crops")))
	require.NoError(t, s.Put(ctx, "apicache:b", encoded(t, "/api/roles", "roles")))
	require.NoError(t, s.Close())

	_, err := os.Stat(path)
	require.NoError(t, err)

	reopened := New(path)
	require.NoError(t, reopened.Open(ctx))
	defer reopened.Close()

	raw, err := reopened.Get(ctx, "apicache:a")
	require.NoError(t, err)
	e, err := cache.DecodeEntry(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("crops"), e.Data)
	assert.Equal(t, "/api/crops", e.URL)
}

func TestStoreDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "api.arrow")

	s := New(path)
	require.NoError(t, s.Open(ctx))
	defer s.Close()

	require.NoError(t, s.Put(ctx, "apicache:a", encoded(t, "/a", "1")))
	require.NoError(t, s.Put(ctx, "apicache:b", encoded(t, "/b", "2")))

	require.NoError(t, s.Delete(ctx, "apicache:a"))
	require.NoError(t, s.Delete(ctx, "apicache:a"))
	_, err := s.Get(ctx, "apicache:a")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Get(ctx, "apicache:b")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	reopened := New(path)
	require.NoError(t, reopened.Open(ctx))
	_, err = reopened.Get(ctx, "apicache:b")
	assert.ErrorIs(t, err, cache.ErrNotFound, "clear must be persisted")
}

func TestStoreRejectsNonEntry(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "api.arrow"))
	require.NoError(t, s.Open(ctx))

	assert.ErrorIs(t, s.Put(ctx, "apicache:x", []byte("raw bytes")), cache.ErrCorruptEntry)
}

func TestStoreCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.arrow")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	err := New(path).Open(context.Background())
	assert.ErrorIs(t, err, cache.ErrCorruptEntry)
}

func TestStoreClosed(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "api.arrow"))

	_, err := s.Get(ctx, "apicache:a")
	assert.ErrorIs(t, err, cache.ErrClosed)
	assert.ErrorIs(t, s.Delete(ctx, "apicache:a"), cache.ErrClosed)
	assert.ErrorIs(t, s.Clear(ctx), cache.ErrClosed)
}

func TestStoreBackingCache(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "api.arrow")
	id := cache.Identity{Method: "GET", URL: "/api/files", Params: map[string]any{"dir": "/datasets/rice"}}

	c := cache.New(New(path))
	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.Set(ctx, id, []byte(`["leaf_001.jpg"]`)))
	require.NoError(t, c.Close())

	c2 := cache.New(New(path))
	require.NoError(t, c2.Open(ctx))
	defer c2.Close()

	got, ok, err := c2.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`["leaf_001.jpg"]`), got)
}
