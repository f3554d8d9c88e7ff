// Package dbopen opens the SQLite databases used by the template catalog.
//
// Every connection gets the same pragmas: foreign keys on, WAL journal,
// a busy timeout and synchronous=NORMAL. Schemas passed with WithSchema run
// once after the pragmas.
//
//	db, err := dbopen.Open(ctx, "catalog.db", dbopen.WithSchema(schema), dbopen.WithMkdirAll())
//
// Tests use OpenMemory, which closes the database on cleanup.
package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

type config struct {
	busyTimeout int
	synchronous string
	mkdirAll    bool
	schemas     []string
}

// Option customises Open.
type Option func(*config)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithSynchronous sets PRAGMA synchronous. Default: NORMAL.
func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues DDL to execute after the pragmas.
func WithSchema(ddl string) Option { return func(c *config) { c.schemas = append(c.schemas, ddl) } }

func (c *config) pragmas() []string {
	return []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", c.busyTimeout),
		fmt.Sprintf("PRAGMA synchronous = %s", c.synchronous),
	}
}

// Open opens the database at path with the modernc.org/sqlite driver.
func Open(ctx context.Context, path string, opts ...Option) (*sql.DB, error) {
	cfg := config{busyTimeout: 10_000, synchronous: "NORMAL"}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	stmts := append(cfg.pragmas(), cfg.schemas...)
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: exec %.40q: %w", s, err)
		}
	}
	return db, nil
}

// OpenMemory opens a private in-memory database for a test. The pool is
// limited to one connection since each ":memory:" connection is a
// separate database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
