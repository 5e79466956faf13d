package rest

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/VanDung-dev/AgriDx-Engine/engine"
	"github.com/VanDung-dev/AgriDx-Engine/pkg/retry"
	"github.com/VanDung-dev/AgriDx-Engine/workers"
)

// ChecksumHeader carries the MD5 of an uploaded file.
const ChecksumHeader = "X-Content-MD5"

// Request is one GET in a batch.
type Request struct {
	Path   string
	Params map[string]any
}

// File is one upload in a batch.
type File struct {
	Name string
	Data []byte
	// Field is the multipart field name. Defaults to "file".
	Field string
}

// UploadResult is the server answer for one uploaded file.
type UploadResult struct {
	Name string
	MD5  string
	Body []byte
}

// Checksummer returns the hex MD5 of a file.
type Checksummer func(ctx context.Context, name string, data []byte) (string, error)

// LocalChecksum hashes in-process.
func LocalChecksum(_ context.Context, _ string, data []byte) (string, error) {
	return workers.MD5Hex(data), nil
}

// WorkerChecksum hashes on a remote hash worker.
func WorkerChecksum(wc *workers.Client) Checksummer {
	return func(ctx context.Context, name string, data []byte) (string, error) {
		out, err := workers.CallAs[workers.HashRequest, workers.HashResponse](ctx, wc, workers.KindHash,
			workers.HashRequest{Name: name, Data: data})
		if err != nil {
			return "", err
		}
		return out.MD5, nil
	}
}

// FetchAll runs the GETs in reqs with at most concurrency in flight.
// Results keep the order of reqs; a failed request does not stop the
// others.
func (c *Client) FetchAll(ctx context.Context, reqs []Request, concurrency int, onProgress engine.ProgressFunc) ([]engine.Result[[]byte], error) {
	tasks := make([]engine.Task[[]byte], len(reqs))
	for i, r := range reqs {
		tasks[i] = func(ctx context.Context) ([]byte, error) {
			return c.Get(ctx, r.Path, r.Params)
		}
	}
	return engine.Run(ctx, tasks, concurrency, onProgress, c.executorOptions()...)
}

// UploadFiles POSTs each file as multipart/form-data to path with at most
// concurrency uploads in flight. Each request carries the file MD5 in
// ChecksumHeader and in an "md5" form field.
func (c *Client) UploadFiles(ctx context.Context, path string, files []File, concurrency int, onProgress engine.ProgressFunc) ([]engine.Result[UploadResult], error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	target := c.URL(path)
	tasks := make([]engine.Task[UploadResult], len(files))
	for i, f := range files {
		tasks[i] = func(ctx context.Context) (UploadResult, error) {
			return c.upload(ctx, target, f)
		}
	}
	return engine.Run(ctx, tasks, concurrency, onProgress, c.executorOptions()...)
}

func (c *Client) upload(ctx context.Context, target string, f File) (UploadResult, error) {
	ctx, span := c.tracer.Start(ctx, "rest.upload", trace.WithAttributes(
		attribute.String("http.url", target),
		attribute.String("file.name", f.Name),
		attribute.Int("file.size", len(f.Data)),
	))
	defer span.End()

	sum, err := c.checksum(ctx, f.Name, f.Data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checksum failed")
		return UploadResult{}, fmt.Errorf("checksum %s: %w", f.Name, err)
	}

	body, contentType, err := multipartBody(f, sum)
	if err != nil {
		return UploadResult{}, err
	}

	var answer []byte
	err = retry.Do(ctx, c.retryConfig(target), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set(ChecksumHeader, sum)
		answer, err = c.do(req)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return UploadResult{}, err
	}
	return UploadResult{Name: f.Name, MD5: sum, Body: answer}, nil
}

func multipartBody(f File, sum string) ([]byte, string, error) {
	field := f.Field
	if field == "" {
		field = "file"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("md5", sum); err != nil {
		return nil, "", err
	}
	part, err := mw.CreateFormFile(field, f.Name)
	if err != nil {
		return nil, "", fmt.Errorf("create form file %s: %w", f.Name, err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func (c *Client) executorOptions() []engine.Option {
	return []engine.Option{engine.WithLogger(c.logger), engine.WithMetrics(c.metrics)}
}
