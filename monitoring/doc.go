// Package monitoring provides metrics and observability.
// This package implements:
// - Prometheus metrics for the executor, cache and workers
// - The /metrics HTTP endpoint
package monitoring
