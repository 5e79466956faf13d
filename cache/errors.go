package cache

import (
	"errors"
	"fmt"
)

// Common errors for cache operations
var (
	ErrNotFound        = errors.New("cache entry not found")
	ErrClosed          = errors.New("cache store is closed")
	ErrInvalidIdentity = errors.New("invalid resource identity")
	ErrCorruptEntry    = errors.New("corrupt cache entry")
)

// StorageError is returned when the backing store fails an operation.
// Storage failures are retryable from the caller's point of view.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Temporary reports that the operation may succeed if retried.
func (e *StorageError) Temporary() bool { return true }
