package engine

import (
	"context"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/remote"
	"github.com/hazyhaar/pagelem/scope"
)

// discover collects the descriptors node n declares for the component
// located at w. Paths are relative to w, with prefix prepended for the
// page. Named descendants are components of their own and stop the walk.
func (r *resolver) discover(ctx context.Context, n *pagelem.Element, w remote.Handle, sc *scope.Instance, prefix string) (map[string]*scope.Descriptor, error) {
	out := map[string]*scope.Descriptor{}
	switch n.Kind {
	case pagelem.NodeRepeat:
		return out, nil
	case pagelem.NodeInput:
		add(out, &scope.Descriptor{Kind: scope.DescInput, Name: "value", Attr: "value", Input: n.Input})
	}
	addBindings(out, n.Bindings, "", false)
	for _, c := range n.Children {
		if err := r.walkAttrs(ctx, c, w, sc, prefix, false, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *resolver) walkAttrs(ctx context.Context, n *pagelem.Element, w remote.Handle, sc *scope.Instance, prefix string, opt bool, out map[string]*scope.Descriptor) error {
	opt = opt || n.Optional
	walk := func(prefix string) error {
		for _, c := range n.Children {
			if err := r.walkAttrs(ctx, c, w, sc, prefix, opt, out); err != nil {
				return err
			}
		}
		return nil
	}

	switch n.Kind {
	case pagelem.NodeAny, pagelem.NodeBody:
		path := pagelem.PrependXPath(prefix, n.Fragment(), "/")
		addBindings(out, n.Bindings, path, opt)
		return walk(path)

	case pagelem.NodeGroup, pagelem.NodeTemplate, pagelem.NodeSlot:
		return walk(prefix)

	case pagelem.NodeDeep:
		return walk(deepPrefix(prefix))

	case pagelem.NodeRootReset:
		return walk("//")

	case pagelem.NodeMatchByID:
		if n.Naming.Kind == pagelem.NameFixed || remote.IsHypothetical(r.backend) {
			return nil
		}
		id, err := r.evalID(ctx, n, sc)
		if err != nil || id == "" {
			return err
		}
		return walk("//*[@id=" + pagelem.TextEscape(id) + "]")

	case pagelem.NodeInput:
		if n.Naming.Kind != pagelem.NameNone {
			return nil
		}
		path := pagelem.PrependXPath(prefix, n.Fragment(), "/")
		if n.InputName != "*" {
			add(out, &scope.Descriptor{Kind: scope.DescInput, Name: n.InputName, Path: path, Attr: "value", Input: n.Input, Optional: opt})
			return nil
		}
		return r.enumerateInputs(ctx, n, w, path, opt, out)

	case pagelem.NodeTextBinding:
		d := &scope.Descriptor{Kind: scope.DescText, Name: n.BindName, Path: prefix, Strip: n.Strip, Optional: opt}
		if n.Partial {
			d.Kind = scope.DescPartialText
			d.After, d.Before = n.After, n.Before
		}
		add(out, d)

	case pagelem.NodeRegex:
		if n.BindName != "" {
			add(out, &scope.Descriptor{Kind: scope.DescRegex, Name: n.BindName, Path: prefix, Regex: n.Regex, Optional: opt})
		}
		for _, g := range n.Regex.SubexpNames() {
			if g != "" {
				add(out, &scope.Descriptor{Kind: scope.DescRegex, Name: g, Path: prefix, Regex: n.Regex, Group: g, Optional: opt})
			}
		}

	case pagelem.NodeScopedData:
		add(out, &scope.Descriptor{Kind: scope.DescConstant, Name: n.BindName, Value: n.Value})
	}
	return nil
}

// enumerateInputs exposes every input matching path under its remote
// name, or its id when it has none.
func (r *resolver) enumerateInputs(ctx context.Context, n *pagelem.Element, w remote.Handle, path string, opt bool, out map[string]*scope.Descriptor) error {
	hs, err := r.find(ctx, w, path)
	if err != nil {
		return err
	}
	for _, h := range hs {
		for _, attr := range []string{"name", "id"} {
			v, ok, err := r.backend.Attribute(ctx, h, attr)
			if err != nil {
				return backendErr(path, err)
			}
			if !ok || v == "" {
				continue
			}
			add(out, &scope.Descriptor{
				Kind:     scope.DescInput,
				Name:     v,
				Path:     path + "[@" + attr + "=" + pagelem.TextEscape(v) + "]",
				Attr:     "value",
				Input:    n.Input,
				Optional: opt,
			})
			break
		}
	}
	return nil
}

func addBindings(out map[string]*scope.Descriptor, bs []pagelem.Binding, path string, opt bool) {
	for _, b := range bs {
		add(out, bindingToDescriptor(b, path, opt))
	}
}

func bindingToDescriptor(b pagelem.Binding, path string, opt bool) *scope.Descriptor {
	d := &scope.Descriptor{Name: b.Name, Path: path, Attr: b.Attr, Optional: opt, Token: b.Token, Tokens: b.Tokens}
	switch b.Kind {
	case pagelem.BindEquals:
		d.Kind = scope.DescAttrEquals
	case pagelem.BindContains:
		d.Kind = scope.DescAttrContains
	case pagelem.BindChoice:
		d.Kind = scope.DescAttrChoice
	default:
		d.Kind = scope.DescAttr
	}
	return d
}

// bindingDescriptor returns the descriptor of n's own binding called name.
func bindingDescriptor(n *pagelem.Element, name string) *scope.Descriptor {
	for _, b := range n.Bindings {
		if b.Name == name {
			return bindingToDescriptor(b, "", false)
		}
	}
	return nil
}

// add keeps the first descriptor declared under a name.
func add(out map[string]*scope.Descriptor, d *scope.Descriptor) {
	if d.Name == "" {
		return
	}
	if _, dup := out[d.Name]; !dup {
		out[d.Name] = d
	}
}
