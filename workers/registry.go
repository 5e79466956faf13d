package workers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/VanDung-dev/AgriDx-Engine/monitoring"
)

// Handler processes the payload of one worker kind. Handlers keep no state
// between invocations.
type Handler interface {
	Kind() Kind
	Handle(ctx context.Context, payload []byte) ([]byte, error)
}

type typedHandler[Req, Resp any] struct {
	kind Kind
	fn   func(context.Context, Req) (Resp, error)
}

// NewHandler adapts a typed function into a Handler that decodes Req from
// and encodes Resp to JSON.
func NewHandler[Req, Resp any](kind Kind, fn func(context.Context, Req) (Resp, error)) Handler {
	return &typedHandler[Req, Resp]{kind: kind, fn: fn}
}

func (h *typedHandler[Req, Resp]) Kind() Kind { return h.kind }

func (h *typedHandler[Req, Resp]) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	var req Req
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	resp, err := h.fn(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithRegistryMetrics records handled envelopes on m.
func WithRegistryMetrics(m *monitoring.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// Registry routes requests to handlers by kind.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		handlers: make(map[Kind]Handler),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in kind registered.
func DefaultRegistry(opts ...RegistryOption) *Registry {
	r := NewRegistry(opts...)
	r.Register(NewHandler(KindHash, Hash))
	r.Register(NewHandler(KindCompress, Compress))
	r.Register(NewHandler(KindAnnotate, Annotate))
	r.Register(NewHandler(KindReport, Report))
	return r
}

// Register adds h, replacing any handler of the same kind.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Kind()] = h
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Dispatch runs req on its handler. It never panics: unknown kinds, bad
// payloads, handler errors and panics all become failed responses.
func (r *Registry) Dispatch(ctx context.Context, req Request) (resp Response) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			resp = failure(req, fmt.Errorf("panic in %s worker: %v", req.Kind, p))
		}
		r.metrics.ObserveWorker(string(req.Kind), time.Since(start), resp.OK)
		if !resp.OK {
			r.logger.Warn("worker request failed",
				zap.String("id", req.ID),
				zap.String("kind", string(req.Kind)),
				zap.String("error", resp.Error),
			)
		}
	}()

	r.mu.RLock()
	h, ok := r.handlers[req.Kind]
	r.mu.RUnlock()
	if !ok {
		return failure(req, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind))
	}

	out, err := h.Handle(ctx, req.Payload)
	if err != nil {
		return failure(req, err)
	}
	return Response{ID: req.ID, Kind: req.Kind, OK: true, Payload: out}
}

// Call dispatches payload locally and decodes the result into Resp.
func Call[Req, Resp any](ctx context.Context, r *Registry, kind Kind, req Req) (Resp, error) {
	var out Resp
	env, err := NewRequest(kind, req)
	if err != nil {
		return out, err
	}
	err = r.Dispatch(ctx, env).Decode(&out)
	return out, err
}
