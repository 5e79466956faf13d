// Package redisstore provides a Redis-backed cache.Store.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/VanDung-dev/AgriDx-Engine/cache"
)

// DefaultNamespace prefixes every key written by the store.
const DefaultNamespace = "agridx:"

const clearBatch = 500

// Store implements cache.Store on Redis.
type Store struct {
	client    redis.UniversalClient
	namespace string
	// expiry is a server-side safety net; freshness is decided by the cache.
	expiry time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace overrides DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(s *Store) { s.namespace = ns }
}

// WithExpiry sets a Redis TTL on every written key. Zero disables it.
func WithExpiry(d time.Duration) Option {
	return func(s *Store) { s.expiry = d }
}

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

// New creates a store over client. The store owns the client and closes it.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, namespace: DefaultNamespace}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(k string) string { return s.namespace + k }

// Open verifies connectivity.
func (s *Store) Open(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	err := s.client.Close()
	if err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, mapClosed(err))
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, s.expiry).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, mapClosed(err))
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, mapClosed(err))
	}
	return nil
}

// Clear deletes every key under the namespace.
func (s *Store) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.namespace+cache.KeyPrefix+"*", clearBatch).Iterator()

	batch := make([]string, 0, clearBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis del batch: %w", mapClosed(err))
		}
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == clearBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", mapClosed(err))
	}
	return flush()
}

func mapClosed(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return cache.ErrClosed
	}
	return err
}
