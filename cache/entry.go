package cache

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Entry is the record persisted for each cached response.
type Entry struct {
	Data      []byte `json:"data"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	URL       string `json:"url"`
	Method    string `json:"method"`
	Params    string `json:"params"`
}

// EncodeEntry serializes e for storage.
func EncodeEntry(e *Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}
	return data, nil
}

// DecodeEntry parses a stored record.
func DecodeEntry(raw []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if e.Timestamp <= 0 {
		return nil, fmt.Errorf("%w: missing timestamp", ErrCorruptEntry)
	}
	return &e, nil
}
