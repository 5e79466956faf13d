// Package arrow provides Apache Arrow integration for AgriDx-Engine.
// This package implements:
// - The columnar schema for persisted cache entries
// - Conversion between cache entries and Arrow records
// - Arrow IPC stream encoding for on-disk snapshots
package arrow
