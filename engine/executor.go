package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/VanDung-dev/AgriDx-Engine/monitoring"
)

// Common errors for executor operations
var (
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
	ErrNilTask            = errors.New("task is nil")
)

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return "panic in task: " + panicToString(e.Value)
}

// Stats contains cumulative executor statistics.
type Stats struct {
	Name        string  `json:"name"`
	Workers     int     `json:"workers"`
	Active      int64   `json:"active"`
	Completed   int64   `json:"completed"`
	Failed      int64   `json:"failed"`
	Runs        int64   `json:"runs"`
	SuccessRate float64 `json:"success_rate"`
}

// Option configures an Executor.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// WithLogger sets the logger used to report task failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records task outcomes on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Executor runs task slices on a bounded number of goroutines.
// An Executor may be reused; each Run owns its own cursor and result buffer.
type Executor[T any] struct {
	name        string
	concurrency int
	logger      *zap.Logger
	metrics     *monitoring.Metrics

	// Atomic counters for thread-safe statistics
	active    int64
	completed int64
	failed    int64
	runs      int64
}

// NewExecutor creates an executor allowing at most concurrency tasks in flight.
func NewExecutor[T any](name string, concurrency int, opts ...Option) (*Executor[T], error) {
	if concurrency <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, concurrency)
	}

	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Executor[T]{
		name:        name,
		concurrency: concurrency,
		logger:      o.logger.With(zap.String("executor", name)),
		metrics:     o.metrics,
	}, nil
}

// Run is a one-shot helper that builds an Executor and runs tasks on it.
func Run[T any](ctx context.Context, tasks []Task[T], concurrency int, onProgress ProgressFunc, opts ...Option) ([]Result[T], error) {
	e, err := NewExecutor[T]("run", concurrency, opts...)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, tasks, onProgress), nil
}

// runState is owned by a single Run invocation.
type runState[T any] struct {
	tasks   []Task[T]
	results []Result[T]
	next    atomic.Int64

	// progressMu serializes completion counting and the progress callback.
	progressMu sync.Mutex
	completed  int
	onProgress ProgressFunc
}

// Run executes tasks with at most the configured number in flight and
// returns one result per task, in submission order. A failing task does not
// affect its siblings. Run returns once every task has been claimed and
// executed; ctx is passed to each task and is not used to abort the run.
func (e *Executor[T]) Run(ctx context.Context, tasks []Task[T], onProgress ProgressFunc) []Result[T] {
	atomic.AddInt64(&e.runs, 1)

	total := len(tasks)
	if total == 0 {
		return []Result[T]{}
	}

	st := &runState[T]{
		tasks:      tasks,
		results:    make([]Result[T], total),
		onProgress: onProgress,
	}

	workers := e.concurrency
	if workers > total {
		workers = total
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go e.worker(ctx, i, st, &wg)
	}
	wg.Wait()

	return st.results
}

// worker claims indices until the cursor passes the end of the task slice.
func (e *Executor[T]) worker(ctx context.Context, id int, st *runState[T], wg *sync.WaitGroup) {
	defer wg.Done()

	total := int64(len(st.tasks))
	for {
		idx := st.next.Add(1) - 1
		if idx >= total {
			return
		}

		res := e.execute(ctx, id, int(idx), st.tasks[idx])
		st.results[idx] = res

		st.progressMu.Lock()
		st.completed++
		if st.onProgress != nil {
			st.onProgress(st.completed, len(st.tasks))
		}
		st.progressMu.Unlock()
	}
}

// execute runs a single task, converting panics into a failed result.
func (e *Executor[T]) execute(ctx context.Context, workerID, idx int, task Task[T]) (res Result[T]) {
	atomic.AddInt64(&e.active, 1)
	e.metrics.TaskStarted(e.name)
	start := time.Now()
	res.Index = idx

	defer func() {
		if r := recover(); r != nil {
			res.Err = &PanicError{Value: r}
		}
		res.Duration = time.Since(start)

		atomic.AddInt64(&e.active, -1)
		e.metrics.TaskFinished(e.name)
		e.metrics.ObserveTask(e.name, res.Duration, res.Err)

		if res.Err != nil {
			atomic.AddInt64(&e.failed, 1)
			e.logger.Warn("task failed",
				zap.Int("index", idx),
				zap.Int("worker", workerID),
				zap.Duration("duration", res.Duration),
				zap.Error(res.Err),
			)
			return
		}
		atomic.AddInt64(&e.completed, 1)
	}()

	if task == nil {
		res.Err = ErrNilTask
		return res
	}

	res.Value, res.Err = task(ctx)
	return res
}

// panicToString converts a recovered panic value to a string.
func panicToString(r interface{}) string {
	switch v := r.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Concurrency returns the configured in-flight bound.
func (e *Executor[T]) Concurrency() int {
	return e.concurrency
}

// GetStats returns current executor statistics.
func (e *Executor[T]) GetStats() Stats {
	completed := atomic.LoadInt64(&e.completed)
	failed := atomic.LoadInt64(&e.failed)
	total := completed + failed

	var successRate float64
	if total > 0 {
		successRate = float64(completed) / float64(total) * 100
	}

	return Stats{
		Name:        e.name,
		Workers:     e.concurrency,
		Active:      atomic.LoadInt64(&e.active),
		Completed:   completed,
		Failed:      failed,
		Runs:        atomic.LoadInt64(&e.runs),
		SuccessRate: successRate,
	}
}
