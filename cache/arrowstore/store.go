// Package arrowstore provides a single-file cache.Store persisted as an
// Arrow IPC stream.
package arrowstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/VanDung-dev/AgriDx-Engine/arrow"
	"github.com/VanDung-dev/AgriDx-Engine/cache"
)

// Store keeps entries in memory and rewrites the snapshot file after every
// mutation. Values must be records produced by cache.EncodeEntry.
type Store struct {
	path  string
	conv  *arrow.Converter
	codec *arrow.IPCCodec

	mu      sync.RWMutex
	entries map[string]cache.Entry
	open    bool
}

// New creates a store persisted at path.
func New(path string) *Store {
	return &Store{
		path:  path,
		conv:  arrow.NewConverter(),
		codec: arrow.NewIPCCodec(),
	}
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Open loads the snapshot if one exists.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	s.entries = entries
	s.open = true
	return nil
}

func (s *Store) load() (map[string]cache.Entry, error) {
	entries := make(map[string]cache.Entry)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	records, err := s.codec.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot %s: %v", cache.ErrCorruptEntry, s.path, err)
	}
	defer func() {
		for _, r := range records {
			r.Release()
		}
	}()

	for _, rec := range records {
		rows, err := s.conv.RecordToRows(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: snapshot %s: %v", cache.ErrCorruptEntry, s.path, err)
		}
		for _, row := range rows {
			entries[row.Key] = row.Entry
		}
	}
	return entries, nil
}

// Close releases the in-memory copy. The snapshot stays on disk.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.entries = nil
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return nil, cache.ErrClosed
	}

	e, ok := s.entries[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return cache.EncodeEntry(&e)
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	e, err := cache.DecodeEntry(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return cache.ErrClosed
	}

	prev, existed := s.entries[key]
	s.entries[key] = *e
	if err := s.persist(); err != nil {
		if existed {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return cache.ErrClosed
	}

	prev, ok := s.entries[key]
	if !ok {
		return nil
	}
	delete(s.entries, key)
	if err := s.persist(); err != nil {
		s.entries[key] = prev
		return err
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return cache.ErrClosed
	}

	kept := make(map[string]cache.Entry)
	for k, e := range s.entries {
		if !strings.HasPrefix(k, cache.KeyPrefix) {
			kept[k] = e
		}
	}
	prev := s.entries
	s.entries = kept
	if err := s.persist(); err != nil {
		s.entries = prev
		return err
	}
	return nil
}

// persist writes the full snapshot. Callers hold s.mu.
func (s *Store) persist() error {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]arrow.Row, len(keys))
	for i, k := range keys {
		rows[i] = arrow.Row{Key: k, Entry: s.entries[k]}
	}

	record := s.conv.RowsToRecord(rows)
	defer record.Release()

	var buf bytes.Buffer
	if err := s.codec.Encode(&buf, record); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return writeFileAtomic(s.path, buf.Bytes(), 0o600)
}

// writeFileAtomic writes data next to path and renames it into place, so a
// crash never leaves a truncated snapshot.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp snapshot: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp snapshot: %w", err)
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}
