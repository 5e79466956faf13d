// Package engine provides bounded-concurrency task execution.
// This package implements:
// - Executor running a fixed slice of tasks on at most K goroutines
// - Ordered, tagged per-slot results
// - Serialized progress reporting
package engine
