// Package loader opens page-element template sources by name, either from
// a directory or from the SQLite catalog, and compiles them.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/catalog"
)

// ErrTraversal is returned for a name that would leave the loader root.
var ErrTraversal = errors.New("loader: path traversal")

// Loader opens the source of a template. Missing names fail with an
// error matching fs.ErrNotExist.
type Loader interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Load opens name with l and parses it.
func Load(ctx context.Context, l Loader, name string, opts ...pagelem.Option) (*pagelem.Template, error) {
	rc, err := l.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return pagelem.ParseReader(rc, append(slices.Clip(opts), pagelem.WithFile(name))...)
}

// Dir loads files below a root directory.
type Dir struct {
	root string
}

// NewDir returns a loader rooted at root.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute root directory.
func (d *Dir) Root() string { return d.root }

// Open implements Loader.
func (d *Dir) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := safePath(d.root, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	return f, nil
}

// safePath joins name under base, refusing names that climb out of it.
func safePath(base, name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrTraversal, name)
	}
	base = filepath.Clean(base)
	p := filepath.Join(base, filepath.Clean("/"+name))
	if p == base || !strings.HasPrefix(p, base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrTraversal, name)
	}
	return p, nil
}

// Catalog loads the sources stored in a catalog.
type Catalog struct {
	store *catalog.Store
}

// FromCatalog returns a loader over s.
func FromCatalog(s *catalog.Store) *Catalog { return &Catalog{store: s} }

// Open implements Loader.
func (c *Catalog) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	e, err := c.store.Get(ctx, name)
	if errors.Is(err, catalog.ErrUnknown) {
		return nil, fmt.Errorf("loader: %w: %w", fs.ErrNotExist, err)
	}
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(e.Source)), nil
}

// Chain tries each loader in turn, moving on only when a name is missing.
type Chain []Loader

// Open implements Loader.
func (c Chain) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	err := fmt.Errorf("loader: %s: %w", name, fs.ErrNotExist)
	for _, l := range c {
		var rc io.ReadCloser
		rc, err = l.Open(ctx, name)
		if !errors.Is(err, fs.ErrNotExist) {
			return rc, err
		}
	}
	return nil, err
}
