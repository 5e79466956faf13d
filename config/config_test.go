package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg := Load(v)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, BackendMemory, cfg.CacheBackend)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 1.0, cfg.TraceSample)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
base_url: "https://api.agridx.example/v1"
concurrency: 8
cache_backend: redis
cache_ttl: "15m"
trace_sample_ratio: 0.1
`)))

	cfg := Load(v)
	assert.Equal(t, "https://api.agridx.example/v1", cfg.BaseURL)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, BackendRedis, cfg.CacheBackend)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 0.1, cfg.TraceSample)
}

func TestValidate(t *testing.T) {
	cfg := Config{Concurrency: 0, CacheTTL: 0, CacheBackend: "disk", MaxRetries: -1, TraceSample: 1.5}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
	assert.Contains(t, err.Error(), "cache_ttl")
	assert.Contains(t, err.Error(), "disk")
	assert.Contains(t, err.Error(), "max_retries")
	assert.Contains(t, err.Error(), "trace_sample_ratio")

	pg := Config{Concurrency: 1, CacheTTL: time.Minute, CacheBackend: BackendPostgres}
	assert.ErrorContains(t, pg.Validate(), "postgres_dsn")
}
