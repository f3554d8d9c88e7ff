// Package catalog stores page-element templates in SQLite together with
// the locators compiled from them, so that tools can list and diff the
// locators of a site without reparsing every source.
package catalog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/dbopen"
	"github.com/hazyhaar/pagelem/idgen"
)

// ErrUnknown is returned for a template name the catalog does not hold.
var ErrUnknown = errors.New("catalog: unknown template")

// Entry is one stored template.
type Entry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Source    string `json:"source,omitempty"`
	Hash      string `json:"hash"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Locator is one stored line of a template tree.
type Locator struct {
	Depth   int    `json:"depth"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Locator string `json:"locator,omitempty"`
	Score   int    `json:"score"`
}

// Store is the catalog database handle.
type Store struct {
	DB     *sql.DB
	ids    idgen.Generator
	now    func() time.Time
	parse  []pagelem.Option
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithIDs replaces the generator of template ids.
func WithIDs(g idgen.Generator) Option { return func(s *Store) { s.ids = g } }

// WithParseOptions sets the options used to compile stored sources.
func WithParseOptions(opts ...pagelem.Option) Option {
	return func(s *Store) { s.parse = opts }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// New wraps an open database whose schema is already applied.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		DB:     db,
		ids:    idgen.Prefixed("tpl_", idgen.UUIDv7()),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open opens or creates the catalog database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := dbopen.Open(ctx, path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return New(db, opts...), nil
}

// Close closes the database.
func (s *Store) Close() error { return s.DB.Close() }

// Hash is the content hash recorded for a source.
func Hash(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}

// Put compiles src and stores it under name, replacing any previous
// source and its locators. Sources that do not compile are rejected. An
// unchanged source leaves the row untouched.
func (s *Store) Put(ctx context.Context, name string, src []byte) (*Entry, error) {
	tmpl, err := pagelem.Parse(src, append(slices.Clip(s.parse), pagelem.WithFile(name))...)
	if err != nil {
		return nil, fmt.Errorf("catalog: put %s: %w", name, err)
	}
	hash := Hash(src)

	prev, err := s.Get(ctx, name)
	switch {
	case err == nil && prev.Hash == hash:
		s.logger.Debug("catalog: unchanged", "name", name)
		return prev, nil
	case err != nil && !errors.Is(err, ErrUnknown):
		return nil, err
	}

	now := s.now().UnixMilli()
	e := &Entry{ID: s.ids(), Name: name, Source: string(src), Hash: hash, CreatedAt: now, UpdatedAt: now}
	if prev != nil {
		e.ID, e.CreatedAt = prev.ID, prev.CreatedAt
	}

	err = dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO templates (id, name, source, hash, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET source = excluded.source, hash = excluded.hash,
				updated_at = excluded.updated_at`,
			e.ID, e.Name, e.Source, e.Hash, e.CreatedAt, e.UpdatedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM locators WHERE template_id = ?`, e.ID); err != nil {
			return err
		}
		for i, t := range tmpl.Tree() {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO locators (template_id, seq, depth, name, kind, locator, score)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				e.ID, i, t.Depth, t.Name, t.Kind.String(), t.Locator, t.Score); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: put %s: %w", name, err)
	}
	s.logger.Info("catalog: stored template", "name", name, "id", e.ID, "hash", hash[:12])
	return e, nil
}

// Get returns the stored template called name, source included.
func (s *Store) Get(ctx context.Context, name string) (*Entry, error) {
	e := &Entry{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, name, source, hash, created_at, updated_at
		FROM templates WHERE name = ?`, name).Scan(
		&e.ID, &e.Name, &e.Source, &e.Hash, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s: %w", name, err)
	}
	return e, nil
}

// List returns every stored template ordered by name, without sources.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, hash, created_at, updated_at FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.Hash, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("catalog: list: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Locators returns the compiled locators stored for name.
func (s *Store) Locators(ctx context.Context, name string) ([]Locator, error) {
	e, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT depth, name, kind, locator, score FROM locators
		WHERE template_id = ? ORDER BY seq`, e.ID)
	if err != nil {
		return nil, fmt.Errorf("catalog: locators %s: %w", name, err)
	}
	defer rows.Close()
	var out []Locator
	for rows.Next() {
		var l Locator
		if err := rows.Scan(&l.Depth, &l.Name, &l.Kind, &l.Locator, &l.Score); err != nil {
			return nil, fmt.Errorf("catalog: locators %s: %w", name, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Delete removes name and its locators.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM templates WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("catalog: delete %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return nil
}
