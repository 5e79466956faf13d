package engine

import (
	"context"
	"time"
)

// Task is a deferred unit of work producing one value or failing.
// Its identity is its position in the slice handed to Run.
type Task[T any] func(ctx context.Context) (T, error)

// ProgressFunc receives (completed, total) after every finished task.
type ProgressFunc func(completed, total int)

// Result is the outcome stored in slot Index of a run.
type Result[T any] struct {
	Index    int
	Value    T
	Err      error
	Duration time.Duration
}

// OK reports whether the task finished without error.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Values returns the value of every slot, leaving the zero value where the
// task failed.
func Values[T any](results []Result[T]) []T {
	out := make([]T, len(results))
	for i, r := range results {
		if r.OK() {
			out[i] = r.Value
		}
	}
	return out
}

// Failed returns the indices of failed slots in ascending order.
func Failed[T any](results []Result[T]) []int {
	var idx []int
	for i, r := range results {
		if !r.OK() {
			idx = append(idx, i)
		}
	}
	return idx
}
