package cache

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Typed stores JSON-encoded values of type T in a Cache.
type Typed[T any] struct {
	cache *Cache
}

// NewTyped wraps c.
func NewTyped[T any](c *Cache) *Typed[T] {
	return &Typed[T]{cache: c}
}

// Get decodes the cached value for id.
func (t *Typed[T]) Get(ctx context.Context, id Identity) (T, bool, error) {
	var zero T

	raw, ok, err := t.cache.Get(ctx, id)
	if err != nil || !ok {
		return zero, ok, err
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("%w: decode %T: %v", ErrCorruptEntry, v, err)
	}
	return v, true, nil
}

// Set encodes v and stores it for id.
func (t *Typed[T]) Set(ctx context.Context, id Identity, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	return t.cache.Set(ctx, id, raw)
}

// Delete removes the value for id.
func (t *Typed[T]) Delete(ctx context.Context, id Identity) error {
	return t.cache.Delete(ctx, id)
}
