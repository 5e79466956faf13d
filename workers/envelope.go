package workers

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// MaxEnvelopeSize is the maximum accepted encoded envelope (32MB).
const MaxEnvelopeSize = 32 * 1024 * 1024

// Kind names a worker type.
type Kind string

// Built-in worker kinds.
const (
	KindHash     Kind = "hash"
	KindCompress Kind = "compress"
	KindAnnotate Kind = "annotate"
	KindReport   Kind = "report"
)

// Common errors for envelope handling
var (
	ErrUnknownKind      = errors.New("unknown worker kind")
	ErrBadPayload       = errors.New("malformed worker payload")
	ErrEnvelopeTooLarge = errors.New("envelope exceeds maximum size")
)

// Request asks a worker of Kind to process Payload.
type Request struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Token   string          `json:"token,omitempty"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RemoteError is a failure reported by a worker.
type RemoteError struct {
	Kind    Kind
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("worker %s: %s", e.Kind, e.Message)
}

// NewRequest builds a request with a fresh ID and JSON-encoded payload.
func NewRequest(kind Kind, payload any) (Request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return Request{
		ID:      uuid.NewString(),
		Kind:    kind,
		Payload: raw,
		SentAt:  time.Now().UTC(),
	}, nil
}

// Err returns a *RemoteError when the response reports failure.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	return &RemoteError{Kind: r.Kind, Message: r.Error}
}

// Decode unmarshals a successful response payload into out.
func (r Response) Decode(out any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if err := json.Unmarshal(r.Payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

func failure(req Request, err error) Response {
	return Response{ID: req.ID, Kind: req.Kind, OK: false, Error: err.Error()}
}

func encodeEnvelope(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrEnvelopeTooLarge, len(data), MaxEnvelopeSize)
	}
	return data, nil
}

func decodeRequest(data []byte) (Request, error) {
	var req Request
	if len(data) > MaxEnvelopeSize {
		return req, fmt.Errorf("%w: %d bytes (max: %d)", ErrEnvelopeTooLarge, len(data), MaxEnvelopeSize)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if req.ID == "" || req.Kind == "" {
		return req, fmt.Errorf("%w: missing id or kind", ErrBadPayload)
	}
	if req.SentAt.IsZero() {
		return req, fmt.Errorf("%w: missing sent_at", ErrBadPayload)
	}
	return req, nil
}

func decodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return resp, nil
}
