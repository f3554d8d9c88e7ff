// Package engine resolves compiled page templates against a remote tree.
//
// Resolution is lazy: the items of a component are produced one at a time
// as the caller ranges over them, and every remote query is issued only when
// the item that needs it is requested. Sequences are finite and cannot be
// restarted; range over Items again to re-query the remote tree.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/remote"
	"github.com/hazyhaar/pagelem/scope"
)

// ErrNoDescriptor is returned when a component has no accessor by the
// requested name.
var ErrNoDescriptor = errors.New("engine: no such descriptor")

// ErrRestarted is yielded when a sequence is ranged over a second time.
var ErrRestarted = errors.New("engine: sequence already consumed")

// errStopped unwinds the locate recursion once the consumer stops ranging.
var errStopped = errors.New("engine: stopped")

// Engine resolves templates against one backend.
type Engine struct {
	backend remote.Backend
	classes *scope.Registry
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithClasses sets the scope class registry used for pe-controller
// attributes and for default page scopes.
func WithClasses(r *scope.Registry) Option { return func(e *Engine) { e.classes = r } }

// New returns an engine over b.
func New(b remote.Backend, opts ...Option) *Engine {
	e := &Engine{backend: b}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.classes == nil {
		e.classes = scope.NewRegistry()
	}
	return e
}

// Backend returns the remote backend of e.
func (e *Engine) Backend() remote.Backend { return e.backend }

// Classes returns the scope class registry of e.
func (e *Engine) Classes() *scope.Registry { return e.classes }

// Match narrows the items a locate produces.
type Match struct {
	// Name keeps only the item of that name.
	Name string
	// Filter is a predicate clause appended to the item locators.
	Filter string
}

func (m Match) narrowed() bool { return m.Name != "" || m.Filter != "" }

// item is one located component before it is wrapped.
type item struct {
	name   string
	handle remote.Handle
	node   *pagelem.Element
	scope  *scope.Instance
	// prefix is the path prefix the node was located with. Repeat
	// containers need it to list their items.
	prefix string
}

// resolver carries one resolution: the backend queried and the page the
// match-by-id expressions see as root.
type resolver struct {
	eng     *Engine
	backend remote.Backend
	page    *Component
	// evaluating guards id expressions against reading themselves.
	evaluating map[*pagelem.Element]bool
}

// find runs one path query. Backend staleness becomes a KindStale error.
func (r *resolver) find(ctx context.Context, h remote.Handle, path string) ([]remote.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hs, err := r.backend.FindByPath(ctx, h, path)
	if err != nil {
		return nil, backendErr(path, err)
	}
	return hs, nil
}

func backendErr(op string, err error) error {
	if errors.Is(err, remote.ErrStale) {
		return pagelem.Stale(op, err)
	}
	if pagelem.KindOf(err) != 0 {
		return err
	}
	return fmt.Errorf("engine: %s: %w", op, err)
}

// controllerScope opens the frame of a pe-controller class, or returns sc.
func (e *Engine) controllerScope(n *pagelem.Element, sc *scope.Instance) (*scope.Instance, error) {
	if n.Controller == "" {
		return sc, nil
	}
	c, ok := e.classes.Get(n.Controller)
	if !ok {
		return nil, fmt.Errorf("engine: %s: unknown controller %q", n, n.Controller)
	}
	return sc.Child(c), nil
}

// missing reports whether err is a miss that combinators may absorb.
func missing(err error) bool {
	k := pagelem.KindOf(err)
	return k == pagelem.KindNotFound || k == pagelem.KindUnwanted
}

// publicErr converts the internal negative-match signal for callers.
func publicErr(err error) error {
	var pe *pagelem.Error
	if errors.As(err, &pe) && pe.Kind == pagelem.KindUnwanted {
		return &pagelem.Error{Kind: pagelem.KindNotFound, Msg: "unwanted element present", Locator: pe.Locator, Parent: pe.Parent}
	}
	return err
}

// ErrUnsupportedPredicate is returned by Predicate.Translate when the
// predicate cannot be expressed as a locator clause.
var ErrUnsupportedPredicate = errors.New("engine: predicate cannot be translated")

// Predicate selects child components. Translate renders it as a clause
// appended to the locators of c's items; Eval decides on one item.
type Predicate interface {
	Translate(ctx context.Context, c *Component) (string, error)
	Eval(ctx context.Context, item *Component) (bool, error)
}
