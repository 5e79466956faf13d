package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/VanDung-dev/AgriDx-Engine/cache"
	"github.com/VanDung-dev/AgriDx-Engine/cache/arrowstore"
	"github.com/VanDung-dev/AgriDx-Engine/cache/pgstore"
	"github.com/VanDung-dev/AgriDx-Engine/cache/redisstore"
	"github.com/VanDung-dev/AgriDx-Engine/config"
	"github.com/VanDung-dev/AgriDx-Engine/logger"
	"github.com/VanDung-dev/AgriDx-Engine/monitoring"
	"github.com/VanDung-dev/AgriDx-Engine/pkg/retry"
	"github.com/VanDung-dev/AgriDx-Engine/pkg/telemetry"
	"github.com/VanDung-dev/AgriDx-Engine/rest"
)

// app holds what every subcommand shares: config, logger, metrics and the
// resources to release on exit.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	closers  []func()
}

func newApp(ctx context.Context, service string) (*app, error) {
	cfg := config.Load(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger.New(cfg.LogLevel).With(zap.String("service", service)),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = monitoring.NewMetrics("agridx", a.registry)

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Service:     telemetry.Namespace + "-" + service,
		Version:     Version,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.TraceSample,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			a.logger.Warn("failed to flush traces", zap.Error(err))
		}
	})

	if cfg.MetricsAddr != "" {
		monitoring.Serve(ctx, cfg.MetricsAddr, a.registry, a.logger)
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

// openCache builds the configured backend and opens the cache over it.
func (a *app) openCache(ctx context.Context) (*cache.Cache, error) {
	store, err := newStore(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	c := cache.New(store,
		cache.WithTTL(a.cfg.CacheTTL),
		cache.WithLogger(a.logger),
		cache.WithMetrics(a.metrics),
	)
	if err := c.Open(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open %s cache: %w", a.cfg.CacheBackend, err)
	}
	a.closers = append(a.closers, func() {
		if err := c.Close(); err != nil {
			a.logger.Warn("cache close failed", zap.Error(err))
		}
	})
	a.logger.Debug("cache opened",
		zap.String("backend", a.cfg.CacheBackend),
		zap.Duration("ttl", c.TTL()),
	)
	return c, nil
}

func newStore(ctx context.Context, cfg config.Config) (cache.Store, error) {
	switch cfg.CacheBackend {
	case config.BackendMemory:
		return cache.NewMemoryStore(), nil
	case config.BackendRedis:
		return redisstore.New(redisstore.NewClient(cfg.RedisAddr), redisstore.WithExpiry(2*cfg.CacheTTL)), nil
	case config.BackendPostgres:
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := pgstore.NewPool(initCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return pgstore.New(pool), nil
	case config.BackendArrow:
		return arrowstore.New(cfg.CacheFile), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

// restClient returns a cached REST client configured from a.cfg.
func (a *app) restClient(ctx context.Context, opts ...rest.Option) (*rest.Client, error) {
	rc, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}
	base := []rest.Option{
		rest.WithCache(rc),
		rest.WithHTTPClient(&http.Client{Timeout: a.cfg.RequestTimeout}),
		rest.WithRetry(retry.Config{MaxAttempts: a.cfg.MaxRetries + 1, BaseDelay: 200 * time.Millisecond}),
		rest.WithLogger(a.logger),
		rest.WithMetrics(a.metrics),
	}
	return rest.New(a.cfg.BaseURL, append(base, opts...)...)
}
