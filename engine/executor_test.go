package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/VanDung-dev/AgriDx-Engine/monitoring"
)

func indexTasks(n int) []Task[int] {
	tasks := make([]Task[int], n)
	for i := 0; i < n; i++ {
		i := i
		tasks[i] = func(ctx context.Context) (int, error) {
			return i, nil
		}
	}
	return tasks
}

func TestNewExecutor(t *testing.T) {
	e, err := NewExecutor[int]("test", 4)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	stats := e.GetStats()
	if stats.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", stats.Workers)
	}
	if stats.Name != "test" {
		t.Errorf("Expected name 'test', got %s", stats.Name)
	}
}

func TestNewExecutorRejectsNonPositiveConcurrency(t *testing.T) {
	for _, k := range []int{0, -1} {
		_, err := NewExecutor[int]("bad", k)
		if !errors.Is(err, ErrInvalidConcurrency) {
			t.Errorf("concurrency %d: expected ErrInvalidConcurrency, got %v", k, err)
		}
	}

	if _, err := Run(context.Background(), indexTasks(3), 0, nil); !errors.Is(err, ErrInvalidConcurrency) {
		t.Errorf("Run: expected ErrInvalidConcurrency, got %v", err)
	}
}

func TestRunPreservesOrder(t *testing.T) {
	for _, tc := range []struct{ n, k int }{{1, 1}, {5, 1}, {10, 3}, {50, 8}, {20, 20}, {7, 100}} {
		t.Run(fmt.Sprintf("n=%d/k=%d", tc.n, tc.k), func(t *testing.T) {
			var calls int64
			var totals sync.Map

			tasks := make([]Task[int], tc.n)
			for i := range tasks {
				i := i
				tasks[i] = func(ctx context.Context) (int, error) {
					// Reverse the natural completion order.
					time.Sleep(time.Duration(tc.n-i) * 100 * time.Microsecond)
					return i, nil
				}
			}

			results, err := Run(context.Background(), tasks, tc.k, func(completed, total int) {
				atomic.AddInt64(&calls, 1)
				totals.Store(total, true)
			})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			if len(results) != tc.n {
				t.Fatalf("Expected %d results, got %d", tc.n, len(results))
			}
			for i, r := range results {
				if !r.OK() || r.Value != i || r.Index != i {
					t.Errorf("Slot %d: expected value %d, got %+v", i, i, r)
				}
			}
			if got := atomic.LoadInt64(&calls); got != int64(tc.n) {
				t.Errorf("Expected %d progress calls, got %d", tc.n, got)
			}
			totals.Range(func(k, _ interface{}) bool {
				if k.(int) != tc.n {
					t.Errorf("Expected total %d, got %d", tc.n, k.(int))
				}
				return true
			})
		})
	}
}

func TestRunRespectsConcurrencyBound(t *testing.T) {
	const n, k = 40, 4

	var inFlight, peak int64
	tasks := make([]Task[int], n)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (int, error) {
			cur := atomic.AddInt64(&inFlight, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return i, nil
		}
	}

	if _, err := Run(context.Background(), tasks, k, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if p := atomic.LoadInt64(&peak); p > k {
		t.Errorf("Expected at most %d tasks in flight, observed %d", k, p)
	}
	if p := atomic.LoadInt64(&peak); p < 2 {
		t.Errorf("Expected tasks to overlap, observed peak %d", p)
	}
}

func TestRunFailureIsolated(t *testing.T) {
	boom := errors.New("upload failed")
	tasks := indexTasks(10)
	tasks[3] = func(ctx context.Context) (int, error) { return 0, boom }
	tasks[7] = func(ctx context.Context) (int, error) { panic("corrupt image") }

	results, err := Run(context.Background(), tasks, 3, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for i, r := range results {
		switch i {
		case 3:
			if !errors.Is(r.Err, boom) {
				t.Errorf("Slot 3: expected boom, got %v", r.Err)
			}
		case 7:
			var pe *PanicError
			if !errors.As(r.Err, &pe) {
				t.Errorf("Slot 7: expected PanicError, got %v", r.Err)
			}
		default:
			if !r.OK() || r.Value != i {
				t.Errorf("Slot %d: expected %d, got %+v", i, i, r)
			}
		}
	}

	failed := Failed(results)
	if len(failed) != 2 || failed[0] != 3 || failed[1] != 7 {
		t.Errorf("Expected failed [3 7], got %v", failed)
	}

	values := Values(results)
	if values[3] != 0 || values[7] != 0 || values[9] != 9 {
		t.Errorf("Unexpected values %v", values)
	}
}

func TestRunNilTask(t *testing.T) {
	tasks := indexTasks(3)
	tasks[1] = nil

	results, _ := Run(context.Background(), tasks, 2, nil)
	if !errors.Is(results[1].Err, ErrNilTask) {
		t.Errorf("Expected ErrNilTask, got %v", results[1].Err)
	}
	if !results[0].OK() || !results[2].OK() {
		t.Error("Siblings of a nil task should succeed")
	}
}

func TestRunEmpty(t *testing.T) {
	called := false
	results, err := Run[int](context.Background(), nil, 4, func(int, int) { called = true })
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results, got %d", len(results))
	}
	if called {
		t.Error("Progress should not fire for an empty run")
	}
}

func TestProgressSerializedAndIncreasing(t *testing.T) {
	const n = 64

	var inCallback int32
	var seen []int
	_, err := Run(context.Background(), indexTasks(n), 16, func(completed, total int) {
		if !atomic.CompareAndSwapInt32(&inCallback, 0, 1) {
			t.Error("Progress callback invoked concurrently")
		}
		seen = append(seen, completed)
		atomic.StoreInt32(&inCallback, 0)
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(seen) != n {
		t.Fatalf("Expected %d progress calls, got %d", n, len(seen))
	}
	for i, c := range seen {
		if c != i+1 {
			t.Fatalf("Expected completed=%d at call %d, got %d", i+1, i, c)
		}
	}
}

func TestRunWaitsForAllTasks(t *testing.T) {
	var finished int64
	tasks := make([]Task[struct{}], 12)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (struct{}, error) {
			time.Sleep(3 * time.Millisecond)
			atomic.AddInt64(&finished, 1)
			return struct{}{}, nil
		}
	}

	done := make(chan struct{})
	go func() {
		_, _ = Run(context.Background(), tasks, 5, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for run")
	}

	if got := atomic.LoadInt64(&finished); got != 12 {
		t.Errorf("Expected 12 finished tasks when Run returned, got %d", got)
	}
}

func TestRunPassesContext(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "plot-7")

	results, _ := Run(ctx, []Task[string]{
		func(ctx context.Context) (string, error) {
			return ctx.Value(ctxKey{}).(string), nil
		},
	}, 1, nil)

	if results[0].Value != "plot-7" {
		t.Errorf("Expected context value 'plot-7', got %q", results[0].Value)
	}
}

func TestExecutorStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics("test", reg)

	e, err := NewExecutor[int]("stats-test", 2, WithMetrics(m))
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	tasks := indexTasks(8)
	for i := 5; i < 8; i++ {
		tasks[i] = func(ctx context.Context) (int, error) { return 0, errors.New("fail") }
	}

	e.Run(context.Background(), tasks, nil)
	e.Run(context.Background(), indexTasks(2), nil)

	stats := e.GetStats()
	if stats.Completed != 7 {
		t.Errorf("Expected 7 completed, got %d", stats.Completed)
	}
	if stats.Failed != 3 {
		t.Errorf("Expected 3 failed, got %d", stats.Failed)
	}
	if stats.Runs != 2 {
		t.Errorf("Expected 2 runs, got %d", stats.Runs)
	}
	if stats.Active != 0 {
		t.Errorf("Expected 0 active, got %d", stats.Active)
	}

	if got := testutil.ToFloat64(m.TasksFailed.WithLabelValues("stats-test")); got != 3 {
		t.Errorf("Expected 3 failed in metrics, got %v", got)
	}
}

func BenchmarkExecutorRun(b *testing.B) {
	e, _ := NewExecutor[int]("bench", 8)
	tasks := indexTasks(256)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Run(context.Background(), tasks, nil)
	}
}
