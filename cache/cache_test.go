package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/AgriDx-Engine/monitoring"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore wraps a MemoryStore and fails selected operations.
type failingStore struct {
	*MemoryStore
	getErr, putErr, deleteErr, clearErr error
	deletes                             int
}

func (s *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *failingStore) Put(ctx context.Context, key string, value []byte) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.MemoryStore.Put(ctx, key, value)
}

func (s *failingStore) Delete(ctx context.Context, key string) error {
	s.deletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryStore.Delete(ctx, key)
}

func (s *failingStore) Clear(ctx context.Context) error {
	if s.clearErr != nil {
		return s.clearErr
	}
	return s.MemoryStore.Clear(ctx)
}

func openCache(t *testing.T, store Store, opts ...Option) *Cache {
	t.Helper()
	c := New(store, opts...)
	require.NoError(t, c.Open(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

var cropsPage = Identity{Method: "GET", URL: "/api/crops", Params: map[string]any{"page": 1, "size": 20}}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := openCache(t, NewMemoryStore())

	payload := []byte(`{"items":[{"id":1,"name":"rice"}],"total":1}`)
	require.NoError(t, c.Set(ctx, cropsPage, payload))

	got, ok, err := c.Get(ctx, cropsPage)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestCacheMiss(t *testing.T) {
	got, ok, err := openCache(t, NewMemoryStore()).Get(context.Background(), cropsPage)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCacheSetReplaces(t *testing.T) {
	ctx := context.Background()
	c := openCache(t, NewMemoryStore())

	require.NoError(t, c.Set(ctx, cropsPage, []byte("v1")))
	require.NoError(t, c.Set(ctx, cropsPage, []byte("v2")))

	got, ok, err := c.Get(ctx, cropsPage)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got)
}

func TestCacheEquivalentParamsShareEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := openCache(t, store)

	a := Identity{Method: "GET", URL: "/api/symptoms", Params: map[string]any{"a": 1, "b": 2}}
	b := Identity{Method: "GET", URL: "/api/symptoms", Params: map[string]any{"b": 2, "a": 1}}

	require.NoError(t, c.Set(ctx, a, []byte("leaf spots")))
	got, ok, err := c.Get(ctx, b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("leaf spots"), got)
	assert.Equal(t, 1, store.Len())
}

func TestCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	c := openCache(t, store, WithClock(clock.Now))

	require.NoError(t, c.Set(ctx, cropsPage, []byte("fresh")))

	clock.Advance(DefaultTTL)
	_, ok, err := c.Get(ctx, cropsPage)
	require.NoError(t, err)
	assert.True(t, ok, "entry exactly TTL old is still fresh")

	clock.Advance(time.Millisecond)
	got, ok, err := c.Get(ctx, cropsPage)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Equal(t, 0, store.Len(), "stale entry must be evicted on read")

	_, ok, err = c.Get(ctx, cropsPage)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheCustomTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := openCache(t, NewMemoryStore(), WithClock(clock.Now), WithTTL(time.Minute), WithTTL(-1))
	assert.Equal(t, time.Minute, c.TTL())

	require.NoError(t, c.Set(ctx, cropsPage, []byte("x")))
	clock.Advance(2 * time.Minute)

	_, ok, err := c.Get(ctx, cropsPage)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	c := openCache(t, NewMemoryStore())

	require.NoError(t, c.Set(ctx, cropsPage, []byte("x")))
	require.NoError(t, c.Delete(ctx, cropsPage))
	require.NoError(t, c.Delete(ctx, cropsPage))

	_, ok, err := c.Get(ctx, cropsPage)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheClear(t *testing.T) {
	ctx := context.Background()
	c := openCache(t, NewMemoryStore())

	ids := []Identity{
		cropsPage,
		{Method: "GET", URL: "/api/diseases"},
		{Method: "GET", URL: "/api/treatments", Params: map[string]any{"disease": 12}},
	}
	for _, id := range ids {
		require.NoError(t, c.Set(ctx, id, []byte("payload")))
	}

	require.NoError(t, c.Clear(ctx))

	for _, id := range ids {
		_, ok, err := c.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok, "%s should be gone after Clear", id.URL)
	}
}

func TestCacheLifecycle(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore())

	_, _, err := c.Get(ctx, cropsPage)
	assert.ErrorIs(t, err, ErrClosed, "operations before Open")

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.Set(ctx, cropsPage, []byte("x")))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Set(ctx, cropsPage, []byte("y")), ErrClosed)
	assert.ErrorIs(t, c.Delete(ctx, cropsPage), ErrClosed)
	assert.ErrorIs(t, c.Clear(ctx), ErrClosed)
}

func TestCacheInvalidIdentity(t *testing.T) {
	ctx := context.Background()
	c := openCache(t, NewMemoryStore())
	bad := Identity{URL: "/api/crops"}

	_, _, err := c.Get(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	assert.ErrorIs(t, c.Set(ctx, bad, nil), ErrInvalidIdentity)
	assert.ErrorIs(t, c.Delete(ctx, bad), ErrInvalidIdentity)
}

func TestCacheStorageFailuresPropagate(t *testing.T) {
	ctx := context.Background()
	quota := errors.New("quota exceeded")
	store := &failingStore{MemoryStore: NewMemoryStore(), getErr: quota, putErr: quota, deleteErr: quota, clearErr: quota}
	c := openCache(t, store)

	var serr *StorageError

	_, _, err := c.Get(ctx, cropsPage)
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "get", serr.Op)
	assert.True(t, serr.Temporary())
	assert.ErrorIs(t, err, quota)

	err = c.Set(ctx, cropsPage, []byte("x"))
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "set", serr.Op)

	assert.ErrorIs(t, c.Delete(ctx, cropsPage), quota)
	assert.ErrorIs(t, c.Clear(ctx), quota)
}

func TestCacheEvictionFailureStillMisses(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := &failingStore{MemoryStore: NewMemoryStore()}
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics("test", reg)
	c := openCache(t, store, WithClock(clock.Now), WithMetrics(m))

	require.NoError(t, c.Set(ctx, cropsPage, []byte("old")))
	clock.Advance(2 * time.Hour)
	store.deleteErr = errors.New("store closed")

	got, ok, err := c.Get(ctx, cropsPage)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got, "stale payload must never be returned")
	assert.Equal(t, 1, store.deletes)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheEvictions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheStorageErrors.WithLabelValues("evict")))
}

func TestCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := openCache(t, store)

	key, err := Key(cropsPage)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, key, []byte("not json")))

	_, _, err = c.Get(ctx, cropsPage)
	assert.ErrorIs(t, err, ErrCorruptEntry)
}

func TestCacheMetrics(t *testing.T) {
	ctx := context.Background()
	m := monitoring.NewMetrics("test", prometheus.NewRegistry())
	c := openCache(t, NewMemoryStore(), WithMetrics(m))

	_, _, _ = c.Get(ctx, cropsPage)
	require.NoError(t, c.Set(ctx, cropsPage, []byte("x")))
	_, _, _ = c.Get(ctx, cropsPage)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheMisses))
}

func TestStoredRecordShape(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	c := openCache(t, store, WithClock(clock.Now))

	id := Identity{Method: "get", URL: "/api/roles", Params: map[string]any{"b": true, "a": "x"}}
	require.NoError(t, c.Set(ctx, id, []byte("roles")))

	key, _ := Key(id)
	raw, err := store.Get(ctx, key)
	require.NoError(t, err)

	e, err := DecodeEntry(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("roles"), e.Data)
	assert.Equal(t, clock.Now().UnixMilli(), e.Timestamp)
	assert.Equal(t, "GET", e.Method)
	assert.Equal(t, "/api/roles", e.URL)
	assert.Equal(t, `{"a":"x","b":true}`, e.Params)
}
