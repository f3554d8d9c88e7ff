package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/remote"
	"github.com/hazyhaar/pagelem/scope"
)

type yieldFunc func(item) bool

// locate produces the components node n contributes under h. prefix is
// prepended to n's own locator: "" for children of a located node, ".//"
// below a deep node, "//" from the document.
//
// It returns errStopped once yield returns false, a KindNotFound or
// KindUnwanted error when a mandatory node is missing or a negative match
// hits, and nil otherwise.
func (r *resolver) locate(ctx context.Context, n *pagelem.Element, h remote.Handle, sc *scope.Instance, prefix string, m Match, yield yieldFunc) error {
	switch n.Kind {
	case pagelem.NodeAny, pagelem.NodeBody:
		return r.locateAny(ctx, n, h, sc, prefix, m, yield)
	case pagelem.NodeNamed:
		return r.locateNamed(ctx, n, h, sc, prefix, m, yield)
	case pagelem.NodeInput:
		if n.Naming.Kind == pagelem.NameFixed {
			return r.locateNamed(ctx, n, h, sc, prefix, m, yield)
		}
	case pagelem.NodeRepeat:
		if n.Naming.Kind == pagelem.NameFixed {
			if m.Name != "" && m.Name != n.Naming.Value {
				return nil
			}
			if !yield(item{name: n.Naming.Value, handle: h, node: n, scope: sc, prefix: prefix}) {
				return errStopped
			}
			return nil
		}
		return r.repeatItems(ctx, n, h, sc, prefix, m, yield)
	case pagelem.NodeChoice:
		return r.locateChoice(ctx, n, h, sc, prefix, m, yield)
	case pagelem.NodeGroup:
		return r.locateGroup(ctx, n, h, sc, prefix, m, yield)
	case pagelem.NodeDeep:
		return r.children(ctx, n, h, sc, deepPrefix(prefix), m, yield)
	case pagelem.NodeRootReset:
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := r.backend.Document(ctx)
		if err != nil {
			return backendErr("document", err)
		}
		return r.children(ctx, n, doc, sc, "//", m, yield)
	case pagelem.NodeMatchByID:
		return r.locateByID(ctx, n, h, sc, m, yield)
	case pagelem.NodeNot:
		return r.locateNot(ctx, n, h, prefix)
	case pagelem.NodeUseTemplate:
		t, ok := sc.Template(n.ID)
		if !ok {
			return fmt.Errorf("engine: %s: unknown template %q", n, n.ID)
		}
		slots := n.BySlot
		if slots == nil {
			slots = map[string]*pagelem.Element{}
		}
		return r.children(ctx, t, h, sc.Child(nil, scope.WithSlots(slots, sc)), prefix, m, yield)
	case pagelem.NodeSlot:
		if sub, caller, ok := sc.Slot(n.ID); ok {
			if caller == nil {
				caller = sc
			}
			return r.locate(ctx, sub, h, caller.Child(nil, scope.WithSlotContent(n, sc)), prefix, m, yield)
		}
		return r.children(ctx, n, h, sc, prefix, m, yield)
	case pagelem.NodeSlotContent:
		if slot, owner, ok := sc.SlotContent(); ok {
			return r.children(ctx, slot, h, owner, prefix, m, yield)
		}
	}
	return nil
}

// children locates every child of parent in document order. Component
// names are unique among them: a child yielding a name already produced
// is cut off at that item.
func (r *resolver) children(ctx context.Context, parent *pagelem.Element, h remote.Handle, sc *scope.Instance, prefix string, m Match, yield yieldFunc) error {
	seen := map[string]bool{}
	for _, c := range parent.Children {
		if c.Kind == pagelem.NodeScopedData {
			if c.Export {
				sc.SetVar(c.BindName, c.Value)
			}
			continue
		}
		stopped := false
		err := r.locate(ctx, c, h, sc, prefix, m, func(it item) bool {
			if seen[it.name] {
				sc.Logger().Debug("engine: duplicate component name", "name", it.name, "node", c.String())
				return false
			}
			seen[it.name] = true
			if !yield(it) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return errStopped
		}
		if err != nil && !errors.Is(err, errStopped) {
			return err
		}
	}
	return nil
}

// locateAny resolves a transparent node: it yields the components of the
// first matching remote node whose children resolve to something.
func (r *resolver) locateAny(ctx context.Context, n *pagelem.Element, h remote.Handle, sc *scope.Instance, prefix string, m Match, yield yieldFunc) error {
	path := pagelem.PrependXPath(prefix, n.XPath(), "")
	ws, err := r.find(ctx, h, path)
	if err != nil {
		return err
	}
	if len(ws) == 0 {
		if n.Optional {
			return nil
		}
		return pagelem.NotFound(path, h)
	}
	sc, err = r.eng.controllerScope(n, sc)
	if err != nil {
		return err
	}

	var first error
	clean := false
	for _, w := range ws {
		var items []item
		err := r.children(ctx, n, w, sc, "", m, func(it item) bool {
			items = append(items, it)
			return true
		})
		if err != nil {
			if !missing(err) {
				return err
			}
			if first == nil {
				first = err
			}
			continue
		}
		if len(items) == 0 {
			clean = true
			continue
		}
		for _, it := range items {
			if !yield(it) {
				return errStopped
			}
		}
		return nil
	}
	if clean || n.Optional {
		return nil
	}
	return first
}

func (r *resolver) locateNamed(ctx context.Context, n *pagelem.Element, h remote.Handle, sc *scope.Instance, prefix string, m Match, yield yieldFunc) error {
	if m.Name != "" && !n.Naming.Accepts(m.Name) {
		return nil
	}
	path := pagelem.PrependXPath(prefix, n.XPath(), "") + m.Filter
	ws, err := r.find(ctx, h, path)
	if err != nil {
		return err
	}
	if len(ws) == 0 {
		if n.Optional || m.Filter != "" {
			return nil
		}
		return pagelem.NotFound(path, h)
	}
	sc, err = r.eng.controllerScope(n, sc)
	if err != nil {
		return err
	}
	pos, err := r.positions(ctx, n, h, prefix, m)
	if err != nil {
		return err
	}
	for i, w := range ws {
		if p, ok := pos[w.Key()]; ok {
			i = p
		}
		name, err := r.nameOf(ctx, n, w, sc, i)
		if err != nil {
			return err
		}
		if m.Name != "" && name != m.Name {
			continue
		}
		if !yield(item{name: name, handle: w, node: n, scope: sc, prefix: prefix}) {
			return errStopped
		}
	}
	return nil
}

// positions maps the matches of n to their index among the unfiltered
// matches, so that positional and index fallback names do not depend on
// the filter.
func (r *resolver) positions(ctx context.Context, n *pagelem.Element, h remote.Handle, prefix string, m Match) (map[string]int, error) {
	if m.Filter == "" || n.Naming.Kind == pagelem.NameFixed {
		return nil, nil
	}
	all, err := r.find(ctx, h, pagelem.PrependXPath(prefix, n.XPath(), ""))
	if err != nil {
		return nil, err
	}
	pos := make(map[string]int, len(all))
	for i, w := range all {
		pos[w.Key()] = i
	}
	return pos, nil
}

// nameOf derives the component name of the i-th match of n. Attribute
// names that read empty fall back to the index.
func (r *resolver) nameOf(ctx context.Context, n *pagelem.Element, w remote.Handle, sc *scope.Instance, i int) (string, error) {
	switch n.Naming.Kind {
	case pagelem.NameFixed:
		return n.Naming.Value, nil
	case pagelem.NamePattern:
		return n.Naming.Format(i), nil
	case pagelem.NameAttr:
		d := bindingDescriptor(n, n.Naming.Value)
		if d == nil {
			descs, err := r.discover(ctx, n, w, sc, "")
			if err != nil {
				return "", err
			}
			d = descs[n.Naming.Value]
		}
		if d == nil {
			break
		}
		v, err := d.Get(ctx, scope.Target{Backend: r.backend, Handle: w})
		if err != nil && !missing(err) {
			return "", err
		}
		if v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s, nil
			}
		}
	}
	return strconv.Itoa(i), nil
}

// repeatItems lists the matches of the repeated child, at most Max of
// them, and enforces Min unless the listing is narrowed by a name or a
// filter.
func (r *resolver) repeatItems(ctx context.Context, n *pagelem.Element, h remote.Handle, sc *scope.Instance, prefix string, m Match, yield yieldFunc) error {
	if len(n.Children) == 0 {
		return nil
	}
	count := 0
	seen := map[string]bool{}
	stopped := false
	err := r.locate(ctx, n.Children[0], h, sc, prefix, Match{Filter: m.Filter}, func(it item) bool {
		if it.name == "" || seen[it.name] {
			it.name += strconv.Itoa(count)
		}
		seen[it.name] = true
		count++
		if m.Name == "" || it.name == m.Name {
			if !yield(it) {
				stopped = true
				return false
			}
			if m.Name != "" {
				return false
			}
		}
		return count < n.Max
	})
	if stopped {
		return errStopped
	}
	if err != nil && !errors.Is(err, errStopped) {
		if !missing(err) {
			return err
		}
		if m.narrowed() || n.Optional || n.Min == 0 {
			return nil
		}
		return err
	}
	if !m.narrowed() && !n.Optional && count < n.Min {
		return &pagelem.Error{
			Kind:    pagelem.KindNotFound,
			Msg:     fmt.Sprintf("repeat needs at least %d, found %d", n.Min, count),
			Locator: n.Children[0].XPath(),
			Parent:  h,
		}
	}
	return nil
}

// locateChoice yields the union of its alternatives, each remote node
// once under the first name it was produced with. Negative matches count
// as misses. When nothing is yielded the first missing alternative is
// kept as the cause of the NotFound error.
func (r *resolver) locateChoice(ctx context.Context, n *pagelem.Element, h remote.Handle, sc *scope.Instance, prefix string, m Match, yield yieldFunc) error {
	seen := map[string]bool{}
	var (
		locs  []string
		first error
	)
	hit := false
	for _, c := range n.Children {
		stopped := false
		err := r.locate(ctx, c, h, sc, prefix, m, func(it item) bool {
			k := it.handle.Key()
			if seen[k] {
				return true
			}
			seen[k] = true
			hit = true
			if !yield(it) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return errStopped
		}
		if err != nil && !errors.Is(err, errStopped) {
			if !missing(err) {
				return err
			}
			if first == nil && pagelem.KindOf(err) == pagelem.KindNotFound {
				first = err
			}
		}
		if l := c.XPath(); l != "" && len(locs) < 3 {
			locs = append(locs, l)
		}
	}
	if hit || n.Optional || m.narrowed() {
		return nil
	}
	return &pagelem.Error{
		Kind:    pagelem.KindNotFound,
		Msg:     "no alternative matched",
		Locator: strings.Join(locs, " or "),
		Parent:  h,
		Err:     first,
	}
}

// locateGroup requires every member. Members are resolved eagerly so a
// missing one suppresses the whole group.
func (r *resolver) locateGroup(ctx context.Context, n *pagelem.Element, h remote.Handle, sc *scope.Instance, prefix string, m Match, yield yieldFunc) error {
	sc, err := r.eng.controllerScope(n, sc)
	if err != nil {
		return err
	}
	var items []item
	seen := map[string]bool{}
	for _, c := range n.Children {
		err := r.locate(ctx, c, h, sc, prefix, m, func(it item) bool {
			if !seen[it.name] {
				seen[it.name] = true
				items = append(items, it)
			}
			return true
		})
		if err == nil {
			continue
		}
		if !missing(err) {
			return err
		}
		if n.Optional {
			return nil
		}
		if pagelem.KindOf(err) == pagelem.KindNotFound {
			return err
		}
		return pagelem.NotFound(c.XPath(), h)
	}
	for _, it := range items {
		if !yield(it) {
			return errStopped
		}
	}
	return nil
}

func (r *resolver) locateByID(ctx context.Context, n *pagelem.Element, h remote.Handle, sc *scope.Instance, m Match, yield yieldFunc) error {
	named := n.Naming.Kind == pagelem.NameFixed
	if named && m.Name != "" && m.Name != n.Naming.Value {
		return nil
	}
	if remote.IsHypothetical(r.backend) {
		return nil
	}
	id, err := r.evalID(ctx, n, sc)
	if err != nil {
		var pe *pagelem.Error
		if errors.As(err, &pe) && pe.Kind == pagelem.KindNotFound {
			if n.Optional {
				return nil
			}
			pe.Parent = h
		}
		return err
	}
	loc := "id(" + pagelem.TextEscape(id) + ")"
	var w remote.Handle
	if id != "" {
		doc, err := r.backend.Document(ctx)
		if err != nil {
			return backendErr("document", err)
		}
		if w, err = r.backend.FindByID(ctx, doc, id); err != nil {
			return backendErr(loc, err)
		}
	}
	if w == nil {
		if n.Optional {
			return nil
		}
		return pagelem.NotFound(loc, h)
	}
	if sc, err = r.eng.controllerScope(n, sc); err != nil {
		return err
	}
	if !named {
		return r.children(ctx, n, w, sc, "", m, yield)
	}
	if m.Filter != "" {
		ok, err := r.accepts(ctx, w, m.Filter)
		if err != nil || !ok {
			return err
		}
	}
	if !yield(item{name: n.Naming.Value, handle: w, node: n, scope: sc}) {
		return errStopped
	}
	return nil
}

// accepts tests a predicate clause against a node already located.
func (r *resolver) accepts(ctx context.Context, w remote.Handle, filter string) (bool, error) {
	hs, err := r.find(ctx, w, "self::*"+filter)
	return len(hs) > 0, err
}

func (r *resolver) locateNot(ctx context.Context, n *pagelem.Element, h remote.Handle, prefix string) error {
	if remote.IsHypothetical(r.backend) {
		return nil
	}
	path := pagelem.PrependXPath(prefix, n.XPath(), "")
	ws, err := r.find(ctx, h, path)
	if err != nil {
		return err
	}
	if len(ws) > 0 {
		return pagelem.Unwanted(path, h)
	}
	return nil
}

// deepPrefix makes prefix match at any depth.
func deepPrefix(prefix string) string {
	switch {
	case prefix == "":
		return ".//"
	case strings.HasSuffix(prefix, "//"):
		return prefix
	case strings.HasSuffix(prefix, "/"):
		return prefix + "/"
	}
	return prefix + "//"
}
