package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/remote"
	"github.com/hazyhaar/pagelem/scope"
)

// Component is a located template node bound to a remote node. The page
// is the component of the template root, bound to the document.
//
// A Component is not safe for concurrent use.
type Component struct {
	Name   string
	Node   *pagelem.Element
	Handle remote.Handle
	Scope  *scope.Instance

	r      *resolver
	parent *Component
	prefix string
	descs  map[string]*scope.Descriptor
}

// Page binds template t to the document. A nil sc opens a frame of the
// built-in page class.
func (e *Engine) Page(ctx context.Context, t *pagelem.Template, sc *scope.Instance) (*Component, error) {
	if sc == nil {
		class, _ := e.classes.Get(scope.ClassPage)
		sc = scope.New(class, nil, scope.WithInstanceLogger(e.logger))
	}
	sc = sc.Child(nil, scope.WithTemplates(t.Templates))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := e.backend.Document(ctx)
	if err != nil {
		return nil, backendErr("document", err)
	}
	prefix := "//"
	if t.Root.Tag == "html" {
		prefix = "/html/"
	}
	r := &resolver{eng: e, backend: e.backend}
	p := &Component{Name: t.Name, Node: t.Root, Handle: doc, Scope: sc, r: r, prefix: prefix}
	r.page = p
	return p, nil
}

// Resolve binds t to the document and lists its top-level components.
func (e *Engine) Resolve(ctx context.Context, t *pagelem.Template, sc *scope.Instance) iter.Seq2[*Component, error] {
	p, err := e.Page(ctx, t, sc)
	if err != nil {
		return func(yield func(*Component, error) bool) { yield(nil, err) }
	}
	return p.Items(ctx)
}

// IsPage reports whether c is bound to the document.
func (c *Component) IsPage() bool { return c.parent == nil }

// Parent returns the component c was listed from, nil for the page.
func (c *Component) Parent() *Component { return c.parent }

// Path returns the names from the page down to c, dot separated.
func (c *Component) Path() string {
	var names []string
	for k := c; k != nil && k.parent != nil; k = k.parent {
		names = append(names, k.Name)
	}
	slices.Reverse(names)
	return strings.Join(names, ".")
}

func (c *Component) String() string {
	if c.IsPage() {
		return "page"
	}
	return "component " + c.Path()
}

func (c *Component) target() scope.Target {
	return scope.Target{Backend: c.r.backend, Handle: c.Handle}
}

func (c *Component) discover(ctx context.Context) error {
	if c.descs != nil {
		return nil
	}
	prefix := ""
	if c.IsPage() {
		prefix = c.prefix
	}
	d, err := c.r.discover(ctx, c.Node, c.Handle, c.Scope, prefix)
	if err != nil {
		return publicErr(err)
	}
	c.descs = d
	return nil
}

// Descriptor returns the accessor called name: template declarations
// first, then the page descriptors of the scope for the page, then its
// component descriptors.
func (c *Component) Descriptor(ctx context.Context, name string) (*scope.Descriptor, error) {
	if err := c.discover(ctx); err != nil {
		return nil, err
	}
	if d, ok := c.descs[name]; ok {
		return d, nil
	}
	if c.IsPage() {
		if d, ok := c.Scope.PageDescriptor(name); ok {
			return d, nil
		}
	}
	if d, ok := c.Scope.ComponentDescriptor(name); ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q on %s", ErrNoDescriptor, name, c)
}

// Attributes lists the accessors the template declares for c.
func (c *Component) Attributes(ctx context.Context) ([]string, error) {
	if err := c.discover(ctx); err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(c.descs)), nil
}

// DescriptorNames lists every accessor of c, template and class ones.
func (c *Component) DescriptorNames(ctx context.Context) ([]string, error) {
	names, err := c.Attributes(ctx)
	if err != nil {
		return nil, err
	}
	if cl := c.Scope.Class; cl != nil {
		names = append(names, cl.ComponentNames()...)
		if c.IsPage() {
			names = append(names, cl.PageNames()...)
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// Get reads the accessor called name.
func (c *Component) Get(ctx context.Context, name string) (any, error) {
	d, err := c.Descriptor(ctx, name)
	if err != nil {
		return nil, err
	}
	var v any
	err = c.retry(ctx, func() error {
		var err error
		v, err = d.Get(ctx, c.target())
		return err
	})
	return v, publicErr(err)
}

// Set writes value through the accessor called name. Setting any accessor
// to a scope.Action performs the action on its node.
func (c *Component) Set(ctx context.Context, name string, value any) error {
	d, err := c.Descriptor(ctx, name)
	if err != nil {
		return err
	}
	return publicErr(c.retry(ctx, func() error { return d.Set(ctx, c.target(), value) }))
}

// Invoke runs the action accessor called name with arg.
func (c *Component) Invoke(ctx context.Context, name string, arg any) error {
	d, err := c.Descriptor(ctx, name)
	if err != nil {
		return err
	}
	if d.Kind != scope.DescAction {
		return fmt.Errorf("engine: %s: %s is not an action", c, d)
	}
	return c.Set(ctx, name, arg)
}

// WaitReady polls the readiness conditions of c's scope class.
func (c *Component) WaitReady(ctx context.Context, timeout string) error {
	ev, ok := c.r.backend.(remote.Evaluator)
	if !ok {
		return fmt.Errorf("engine: wait ready: %w", remote.ErrUnsupported)
	}
	return c.Scope.WaitReady(ctx, ev, timeout)
}

// Items lists the child components of c.
func (c *Component) Items(ctx context.Context) iter.Seq2[*Component, error] {
	return c.seq(ctx, Match{})
}

// Child returns the child component called name.
func (c *Component) Child(ctx context.Context, name string) (*Component, error) {
	var found *Component
	err := c.retry(ctx, func() error {
		it, err := c.lookup(ctx, Match{Name: name})
		if err != nil {
			return err
		}
		found = c.wrap(it)
		return nil
	})
	return found, publicErr(err)
}

func (c *Component) lookup(ctx context.Context, m Match) (item, error) {
	var found item
	ok := false
	err := c.items(ctx, m, func(it item) bool {
		found, ok = it, true
		return false
	})
	if err != nil && !errors.Is(err, errStopped) {
		return item{}, err
	}
	if !ok {
		return item{}, &pagelem.Error{Kind: pagelem.KindNotFound, Msg: "no component " + m.Name + " in " + c.String(), Parent: c.Handle}
	}
	return found, nil
}

func (c *Component) items(ctx context.Context, m Match, yield yieldFunc) error {
	switch {
	case c.Node.Kind == pagelem.NodeRepeat:
		return c.r.repeatItems(ctx, c.Node, c.Handle, c.Scope, c.prefix, m, yield)
	case c.IsPage():
		return c.r.children(ctx, c.Node, c.Handle, c.Scope, c.prefix, m, yield)
	}
	return c.r.children(ctx, c.Node, c.Handle, c.Scope, "", m, yield)
}

func (c *Component) wrap(it item) *Component {
	return &Component{Name: it.name, Node: it.node, Handle: it.handle, Scope: it.scope, r: c.r, parent: c, prefix: it.prefix}
}

// seq adapts a locate walk to a single-use iterator. A stale handle found
// before the first item is relocated once when the scope allows it.
func (c *Component) seq(ctx context.Context, m Match) iter.Seq2[*Component, error] {
	var used atomic.Bool
	return func(yield func(*Component, error) bool) {
		if used.Swap(true) {
			yield(nil, ErrRestarted)
			return
		}
		for attempt := 0; ; attempt++ {
			stopped, produced := false, 0
			err := c.items(ctx, m, func(it item) bool {
				produced++
				if !yield(c.wrap(it), nil) {
					stopped = true
					return false
				}
				return true
			})
			if stopped || err == nil || errors.Is(err, errStopped) {
				return
			}
			if attempt == 0 && produced == 0 && c.recoverable(ctx, err) && c.relocate(ctx) == nil {
				continue
			}
			yield(nil, publicErr(err))
			return
		}
	}
}

// Filter lists the child components satisfying p. The predicate is
// pushed into the locators when it translates, and evaluated on each
// item otherwise.
func (c *Component) Filter(ctx context.Context, p Predicate) iter.Seq2[*Component, error] {
	clause, err := p.Translate(ctx, c)
	switch {
	case err == nil:
		return c.seq(ctx, Match{Filter: clause})
	case errors.Is(err, ErrUnsupportedPredicate):
		c.Scope.Logger().Debug("engine: predicate evaluated client side", "component", c.String(), "reason", err)
		return func(yield func(*Component, error) bool) {
			for it, err := range c.Items(ctx) {
				if err != nil {
					yield(nil, err)
					return
				}
				ok, err := p.Eval(ctx, it)
				if err != nil {
					yield(nil, err)
					return
				}
				if ok && !yield(it, nil) {
					return
				}
			}
		}
	}
	return func(yield func(*Component, error) bool) { yield(nil, err) }
}

// Probe lists the items c would have against b, which is expected to be
// a synthetic backend answering every query with one node. Predicate
// translation uses it to learn the shape of c's items.
func (c *Component) Probe(ctx context.Context, b remote.Backend) ([]*Component, error) {
	doc, err := b.Document(ctx)
	if err != nil {
		return nil, err
	}
	r := &resolver{eng: c.r.eng, backend: b, page: c.r.page}
	probe := &Component{Name: c.Name, Node: c.Node, Handle: doc, Scope: c.Scope, r: r, parent: c.parent, prefix: c.prefix}
	var out []*Component
	err = probe.items(ctx, Match{}, func(it item) bool {
		out = append(out, probe.wrap(it))
		return true
	})
	if err != nil && !errors.Is(err, errStopped) {
		return nil, publicErr(err)
	}
	return out, nil
}

// retry runs op, relocating c once if op fails on a stale handle and the
// scope allows recovery.
func (c *Component) retry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !c.recoverable(ctx, err) {
		return err
	}
	if rerr := c.relocate(ctx); rerr != nil {
		c.Scope.Logger().Warn("engine: stale component not recovered", "component", c.String(), "error", rerr)
		return err
	}
	return op()
}

func (c *Component) recoverable(ctx context.Context, err error) bool {
	if !c.Scope.RecoverStale() || ctx.Err() != nil {
		return false
	}
	if pagelem.KindOf(err) == pagelem.KindStale {
		return true
	}
	if missing(err) {
		return false
	}
	stale, serr := c.r.backend.IsStale(ctx, c.Handle)
	return serr == nil && stale
}

// relocate re-runs the parent's lookup for c's name and rebinds c to the
// node found. A stale parent is relocated first.
func (c *Component) relocate(ctx context.Context) error {
	if c.IsPage() {
		doc, err := c.r.backend.Document(ctx)
		if err != nil {
			return backendErr("document", err)
		}
		c.Handle, c.descs = doc, nil
		return nil
	}
	it, err := c.parent.lookup(ctx, Match{Name: c.Name})
	if err != nil && c.parent.recoverable(ctx, err) {
		if perr := c.parent.relocate(ctx); perr != nil {
			return perr
		}
		it, err = c.parent.lookup(ctx, Match{Name: c.Name})
	}
	if err != nil {
		return err
	}
	c.Scope.Logger().Info("engine: relocated stale component", "component", c.String(), "key", it.handle.Key())
	c.Handle, c.descs = it.handle, nil
	return nil
}
