package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Common errors for the REST client
var (
	ErrEmptyBaseURL = errors.New("base URL is required")
	ErrNoFiles      = errors.New("no files to upload")
)

// StatusError is a non-2xx HTTP answer.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned status %d", e.Method, e.URL, e.StatusCode)
}

// Temporary reports whether the request may succeed if repeated.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// retryable classifies transport failures and 5xx/429 answers as transient.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}
