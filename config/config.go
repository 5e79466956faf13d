// Package config holds typed configuration for the agridx command.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Cache backends accepted by cache_backend.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendArrow    = "arrow"
)

// Config holds typed configuration.
type Config struct {
	LogLevel       string
	BaseURL        string
	Concurrency    int
	CacheBackend   string
	CacheTTL       time.Duration
	RedisAddr      string
	PostgresDSN    string
	CacheFile      string
	WorkerAddr     string
	WorkerToken    string
	MetricsAddr    string
	OTelEndpoint   string
	TraceSample    float64
	RequestTimeout time.Duration
	MaxRetries     int
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("concurrency", 4)
	v.SetDefault("cache_backend", BackendMemory)
	v.SetDefault("cache_ttl", time.Hour)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("cache_file", "agridx-cache.arrow")
	v.SetDefault("worker_addr", "tcp://127.0.0.1:5560")
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("max_retries", 3)
	v.SetDefault("trace_sample_ratio", 1.0)
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:       v.GetString("log_level"),
		BaseURL:        v.GetString("base_url"),
		Concurrency:    v.GetInt("concurrency"),
		CacheBackend:   v.GetString("cache_backend"),
		CacheTTL:       v.GetDuration("cache_ttl"),
		RedisAddr:      v.GetString("redis_addr"),
		PostgresDSN:    v.GetString("postgres_dsn"),
		CacheFile:      v.GetString("cache_file"),
		WorkerAddr:     v.GetString("worker_addr"),
		WorkerToken:    v.GetString("worker_token"),
		MetricsAddr:    v.GetString("metrics_addr"),
		OTelEndpoint:   v.GetString("otel_endpoint"),
		TraceSample:    v.GetFloat64("trace_sample_ratio"),
		RequestTimeout: v.GetDuration("request_timeout"),
		MaxRetries:     v.GetInt("max_retries"),
	}
}

// Validate checks values that would otherwise fail deep inside a command.
func (c Config) Validate() error {
	var errs []error
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache_ttl must be positive, got %s", c.CacheTTL))
	}
	switch c.CacheBackend {
	case BackendMemory, BackendRedis, BackendArrow:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for the postgres cache backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache_backend %q", c.CacheBackend))
	}
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("trace_sample_ratio must be within [0, 1], got %g", c.TraceSample))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries))
	}
	return errors.Join(errs...)
}
