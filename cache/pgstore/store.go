// Package pgstore provides a PostgreSQL-backed cache.Store.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VanDung-dev/AgriDx-Engine/cache"
)

// DefaultTable is the table entries are kept in.
const DefaultTable = "api_cache"

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements cache.Store on a PostgreSQL table.
type Store struct {
	db    DB
	table string
}

// NewPool creates a pgx connection pool for dsn.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool new: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// New creates a store over db using DefaultTable.
func New(db DB) *Store {
	return &Store{db: db, table: DefaultTable}
}

// NewWithTable creates a store using a custom table name.
func NewWithTable(db DB, table string) *Store {
	return &Store{db: db, table: pgx.Identifier{table}.Sanitize()}
}

// Open creates the cache table if needed.
func (s *Store) Open(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		key        TEXT PRIMARY KEY,
		entry      BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var entry []byte
	err := s.db.QueryRow(ctx, `SELECT entry FROM `+s.table+` WHERE key = $1`, key).Scan(&entry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("select %s: %w", key, mapClosed(err))
	}
	return entry, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO `+s.table+` (key, entry, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET entry = EXCLUDED.entry, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, mapClosed(err))
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM `+s.table+` WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, mapClosed(err))
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM `+s.table+` WHERE key LIKE $1`, cache.KeyPrefix+"%"); err != nil {
		return fmt.Errorf("clear %s: %w", s.table, mapClosed(err))
	}
	return nil
}

func mapClosed(err error) error {
	if strings.Contains(err.Error(), "closed pool") {
		return fmt.Errorf("%w: %v", cache.ErrClosed, err)
	}
	return err
}
