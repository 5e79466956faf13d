package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/VanDung-dev/AgriDx-Engine/monitoring"
)

// DefaultTTL is how long an entry stays fresh.
const DefaultTTL = time.Hour

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics records hits, misses and storage failures on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache is an expiring key-value cache for request payloads. It is the sole
// mediator of access to its Store.
type Cache struct {
	store   Store
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu   sync.RWMutex
	open bool
}

// New creates a cache over store. Call Open before use.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open opens the underlying store.
func (c *Cache) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		return nil
	}
	if err := c.store.Open(ctx); err != nil {
		return &StorageError{Op: "open", Err: err}
	}
	c.open = true
	return nil
}

// Close closes the underlying store. Further operations return ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return nil
	}
	c.open = false
	if err := c.store.Close(); err != nil {
		return &StorageError{Op: "close", Err: err}
	}
	return nil
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func (c *Cache) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.open {
		return ErrClosed
	}
	return nil
}

// Get returns the payload stored for id. A stale entry is deleted and
// reported as a miss; it is never returned.
func (c *Cache) Get(ctx context.Context, id Identity) ([]byte, bool, error) {
	key, err := Key(id)
	if err != nil {
		return nil, false, err
	}
	if err := c.checkOpen(); err != nil {
		return nil, false, err
	}

	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		c.metrics.CacheMiss(false)
		return nil, false, nil
	}
	if err != nil {
		c.metrics.CacheStorageError("get")
		return nil, false, &StorageError{Op: "get", Key: key, Err: err}
	}

	entry, err := DecodeEntry(raw)
	if err != nil {
		c.metrics.CacheStorageError("decode")
		return nil, false, &StorageError{Op: "get", Key: key, Err: err}
	}

	if c.now().Sub(time.UnixMilli(entry.Timestamp)) > c.ttl {
		if err := c.store.Delete(ctx, key); err != nil {
			c.metrics.CacheStorageError("evict")
			c.logger.Warn("failed to evict stale entry",
				zap.String("key", key),
				zap.String("url", entry.URL),
				zap.Error(err),
			)
		}
		c.metrics.CacheMiss(true)
		return nil, false, nil
	}

	c.metrics.CacheHit()
	return entry.Data, true, nil
}

// Set stores payload for id stamped with the current time, replacing any
// previous entry.
func (c *Cache) Set(ctx context.Context, id Identity, payload []byte) error {
	method, params, err := normalize(id)
	if err != nil {
		return err
	}
	key, err := Key(id)
	if err != nil {
		return err
	}
	if err := c.checkOpen(); err != nil {
		return err
	}

	raw, err := EncodeEntry(&Entry{
		Data:      payload,
		Timestamp: c.now().UnixMilli(),
		URL:       id.URL,
		Method:    method,
		Params:    params,
	})
	if err != nil {
		return err
	}

	if err := c.store.Put(ctx, key, raw); err != nil {
		c.metrics.CacheStorageError("set")
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Delete removes the entry for id if present.
func (c *Cache) Delete(ctx context.Context, id Identity) error {
	key, err := Key(id)
	if err != nil {
		return err
	}
	if err := c.checkOpen(); err != nil {
		return err
	}

	if err := c.store.Delete(ctx, key); err != nil {
		c.metrics.CacheStorageError("delete")
		return &StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Clear removes every entry, e.g. on logout.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	if err := c.store.Clear(ctx); err != nil {
		c.metrics.CacheStorageError("clear")
		return &StorageError{Op: "clear", Err: err}
	}
	c.logger.Info("cache cleared")
	return nil
}
