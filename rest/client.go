package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/VanDung-dev/AgriDx-Engine/cache"
	"github.com/VanDung-dev/AgriDx-Engine/monitoring"
	"github.com/VanDung-dev/AgriDx-Engine/pkg/retry"
)

const (
	tracerName     = "github.com/VanDung-dev/AgriDx-Engine/rest"
	maxBodySize    = 64 * 1024 * 1024
	defaultTimeout = 30 * time.Second
)

// DefaultRetry retries transient failures twice with 200ms quadratic backoff.
var DefaultRetry = retry.Config{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCache enables response caching for GET requests. The cache must be
// opened by the caller.
func WithCache(rc *cache.Cache) Option {
	return func(c *Client) { c.cache = rc }
}

// WithRetry sets the retry policy. Retryable is always the client's own
// transient-failure check.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records batch executions on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracerProvider sets the span source. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// WithChecksummer replaces the MD5 function used by uploads.
func WithChecksummer(fn Checksummer) Option {
	return func(c *Client) { c.checksum = fn }
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// Client calls the diagnosis backend.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    *cache.Cache
	retry    retry.Config
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	tracer   trace.Tracer
	checksum Checksummer
	headers  http.Header
	group    singleflight.Group
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrEmptyBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		retry:    DefaultRetry,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
		checksum: LocalChecksum,
		headers:  make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.Retryable = retryable
	return c, nil
}

// URL resolves path against the base URL. Absolute URLs pass through.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) identity(path string, params map[string]any) cache.Identity {
	return cache.Identity{Method: http.MethodGet, URL: c.URL(path), Params: params}
}

// Get fetches path with query params. A fresh cached answer is returned
// without a network round trip; a 2xx answer is cached. Identical
// concurrent calls share one request.
func (c *Client) Get(ctx context.Context, path string, params map[string]any) ([]byte, error) {
	id := c.identity(path, params)
	ctx, span := c.tracer.Start(ctx, "rest.get", trace.WithAttributes(
		attribute.String("http.url", id.URL),
	))
	defer span.End()

	if c.cache != nil {
		data, hit, err := c.cache.Get(ctx, id)
		switch {
		case err != nil:
			c.logger.Warn("cache lookup failed, fetching", zap.String("url", id.URL), zap.Error(err))
		case hit:
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return data, nil
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	flightKey, err := cache.Key(id)
	if err != nil {
		flightKey = id.URL
	}
	// The shared fetch outlives any single caller; each caller stops
	// waiting when its own ctx is done.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.fetch(fetchCtx, id)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "get abandoned")
		return nil, ctx.Err()
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "get failed")
		return nil, res.Err
	}
	span.SetAttributes(attribute.Bool("singleflight.shared", res.Shared))

	data := res.Val.([]byte)
	if res.Shared {
		return bytes.Clone(data), nil
	}
	return data, nil
}

func (c *Client) fetch(ctx context.Context, id cache.Identity) ([]byte, error) {
	query, err := EncodeQuery(id.Params)
	if err != nil {
		return nil, err
	}
	target := id.URL
	if query != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query
	}

	var body []byte
	err = retry.Do(ctx, c.retryConfig(target), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("build request: %w", err))
		}
		body, err = c.do(req)
		return err
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, id, body); err != nil {
			c.logger.Warn("failed to cache response", zap.String("url", id.URL), zap.Error(err))
		}
	}
	return body, nil
}

// do sends req and returns the body of a 2xx answer.
func (c *Client) do(req *http.Request) ([]byte, error) {
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", req.URL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(body)),
		}
	}
	return body, nil
}

func (c *Client) retryConfig(target string) retry.Config {
	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error) {
		c.logger.Warn("request failed, retrying",
			zap.String("url", target),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return cfg
}

// Invalidate drops the cached answer for path and params.
func (c *Client) Invalidate(ctx context.Context, path string, params map[string]any) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, c.identity(path, params))
}

// ClearCache drops every cached answer, e.g. on logout.
func (c *Client) ClearCache(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Clear(ctx)
}

// GetJSON fetches path and decodes the JSON answer into T.
func GetJSON[T any](ctx context.Context, c *Client, path string, params map[string]any) (T, error) {
	var out T
	data, err := c.Get(ctx, path, params)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

// EncodeQuery renders params as a URL query in sorted key order. Slices
// repeat the key; nested maps are sent as JSON.
func EncodeQuery(params map[string]any) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(url.Values, len(params))
	for _, k := range keys {
		switch v := params[k].(type) {
		case nil:
			continue
		case []any:
			for _, item := range v {
				s, err := queryValue(item)
				if err != nil {
					return "", fmt.Errorf("param %q: %w", k, err)
				}
				values.Add(k, s)
			}
		case []string:
			for _, item := range v {
				values.Add(k, item)
			}
		default:
			s, err := queryValue(v)
			if err != nil {
				return "", fmt.Errorf("param %q: %w", k, err)
			}
			values.Add(k, s)
		}
	}
	return values.Encode(), nil
}

func queryValue(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case json.Number:
		return x.String(), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
