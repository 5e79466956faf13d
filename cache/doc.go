// Package cache provides an expiring request cache over a pluggable store.
// This package implements:
// - Canonical keys derived from (method, URL, params)
// - TTL-based expiration with eviction on read
// - Explicit Open/Close lifecycle around an injected Store
// - A generic typed layer for JSON payloads
package cache
