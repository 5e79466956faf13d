// Package monitoring provides Prometheus metrics for the AgriDx engine.
package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics for the engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Executor metrics
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec
	TaskLatency    *prometheus.HistogramVec
	TasksInFlight  *prometheus.GaugeVec

	// Cache metrics
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CacheEvictions     prometheus.Counter
	CacheStorageErrors *prometheus.CounterVec

	// Worker envelope metrics
	WorkerRequests *prometheus.CounterVec
	WorkerLatency  *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with the given namespace and
// registers every collector on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TasksCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks that finished successfully",
		}, []string{"executor"}),
		TasksFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks that returned an error or panicked",
		}, []string{"executor"}),
		TaskLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "task_duration_seconds",
			Help:      "Task execution latency in seconds",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"executor"}),
		TasksInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "tasks_inflight",
			Help:      "Tasks currently being executed",
		}, []string{"executor"}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of fresh cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses, stale reads included",
		}),
		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of stale entries evicted on read",
		}),
		CacheStorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "storage_errors_total",
			Help:      "Total number of storage backend failures",
		}, []string{"op"}),

		WorkerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "requests_total",
			Help:      "Total worker envelopes handled, by kind and outcome",
		}, []string{"kind", "outcome"}),
		WorkerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "request_duration_seconds",
			Help:      "Worker request handling latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

// ObserveTask records a finished executor task.
func (m *Metrics) ObserveTask(executor string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.TaskLatency.WithLabelValues(executor).Observe(d.Seconds())
	if err != nil {
		m.TasksFailed.WithLabelValues(executor).Inc()
		return
	}
	m.TasksCompleted.WithLabelValues(executor).Inc()
}

// TaskStarted increments the in-flight gauge.
func (m *Metrics) TaskStarted(executor string) {
	if m == nil {
		return
	}
	m.TasksInFlight.WithLabelValues(executor).Inc()
}

// TaskFinished decrements the in-flight gauge.
func (m *Metrics) TaskFinished(executor string) {
	if m == nil {
		return
	}
	m.TasksInFlight.WithLabelValues(executor).Dec()
}

// CacheHit records a fresh hit.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

// CacheMiss records a miss. Stale reads also count as an eviction.
func (m *Metrics) CacheMiss(evicted bool) {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
	if evicted {
		m.CacheEvictions.Inc()
	}
}

// CacheStorageError records a backend failure for op.
func (m *Metrics) CacheStorageError(op string) {
	if m != nil {
		m.CacheStorageErrors.WithLabelValues(op).Inc()
	}
}

// ObserveWorker records a handled worker envelope.
func (m *Metrics) ObserveWorker(kind string, d time.Duration, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.WorkerRequests.WithLabelValues(kind, outcome).Inc()
	m.WorkerLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// Serve exposes g on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", zap.String("addr", addr))
	return srv
}
