package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/AgriDx-Engine/cache"
	"github.com/VanDung-dev/AgriDx-Engine/config"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"crop=rice", "page=2", "active=true", "ids=[1,2]", "q=12abc", "empty="})
	require.NoError(t, err)

	assert.Equal(t, "rice", params["crop"])
	assert.Equal(t, json.Number("2"), params["page"])
	assert.Equal(t, true, params["active"])
	assert.Len(t, params["ids"], 2)
	assert.Equal(t, "12abc", params["q"])
	assert.Equal(t, "", params["empty"])

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)

	none, err := parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestNewStoreBackends(t *testing.T) {
	ctx := context.Background()
	base := config.Config{Concurrency: 1, CacheTTL: time.Minute}

	mem := base
	mem.CacheBackend = config.BackendMemory
	store, err := newStore(ctx, mem)
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryStore{}, store)

	mr := miniredis.RunT(t)
	rd := base
	rd.CacheBackend = config.BackendRedis
	rd.RedisAddr = mr.Addr()
	store, err = newStore(ctx, rd)
	require.NoError(t, err)
	require.NoError(t, store.Open(ctx))
	require.NoError(t, store.Close())

	ar := base
	ar.CacheBackend = config.BackendArrow
	ar.CacheFile = filepath.Join(t.TempDir(), "cache.arrow")
	store, err = newStore(ctx, ar)
	require.NoError(t, err)
	require.NoError(t, store.Open(ctx))
	require.NoError(t, store.Close())

	bad := base
	bad.CacheBackend = "floppy"
	_, err = newStore(ctx, bad)
	assert.Error(t, err)
}

func TestWriteDefaultConfig(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", "agridx.yaml")
	require.NoError(t, writeDefaultConfig(dest, false))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cache_backend")

	assert.Error(t, writeDefaultConfig(dest, false))
	assert.NoError(t, writeDefaultConfig(dest, true))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "agridx "+Version)
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"fetch"}, {"upload"}, {"cache", "get"}, {"cache", "key"}, {"cache", "clear"},
		{"workers", "serve"}, {"workers", "call"}, {"init"}, {"version"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, "command %v", path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
