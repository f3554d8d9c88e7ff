package predicate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/engine"
	"github.com/hazyhaar/pagelem/scope"
)

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", engine.ErrUnsupportedPredicate, fmt.Sprintf(format, args...))
}

// Translate renders e as a clause appended to the locators of c's items.
// The items are first resolved against a Hypothetical backend to learn
// which accessors each kind of item has. The error wraps
// engine.ErrUnsupportedPredicate when some part of e has no locator form.
func (e Expr) Translate(ctx context.Context, c *engine.Component) (string, error) {
	if e.isTrue() {
		return "", nil
	}
	items, err := c.Probe(ctx, Hypothetical{})
	if err != nil {
		return "", err
	}
	var frags []string
	for _, it := range items {
		if it.Node.Kind == pagelem.NodeRepeat {
			return "", unsupported("item %s is a repeat", it.Name)
		}
		// Narrowing the match would renumber positional names.
		switch it.Node.Naming.Kind {
		case pagelem.NamePattern, pagelem.NameNone:
			return "", unsupported("item %s is named by position", it.Name)
		}
		f, err := e.fragment(ctx, it)
		if err != nil {
			return "", err
		}
		if !slices.Contains(frags, f) {
			frags = append(frags, f)
		}
	}
	switch len(frags) {
	case 0:
		return "", nil
	case 1:
		return "[" + frags[0] + "]", nil
	}
	return "[(" + strings.Join(frags, ") or (") + ")]", nil
}

func (e Expr) fragment(ctx context.Context, it *engine.Component) (string, error) {
	switch e.kind {
	case kindAnd, kindOr:
		if len(e.args) == 0 {
			return static(e.kind == kindAnd), nil
		}
		sep := " and "
		if e.kind == kindOr {
			sep = " or "
		}
		parts := make([]string, len(e.args))
		for i, a := range e.args {
			f, err := a.fragment(ctx, it)
			if err != nil {
				return "", err
			}
			parts[i] = "(" + f + ")"
		}
		return strings.Join(parts, sep), nil
	case kindNot:
		f, err := e.args[0].fragment(ctx, it)
		if err != nil {
			return "", err
		}
		return "not(" + f + ")", nil
	}
	if e.isTrue() {
		return "true()", nil
	}

	if e.name {
		switch it.Node.Naming.Kind {
		case pagelem.NameFixed:
			return static(compare(e.op, it.Node.Naming.Value, e.value)), nil
		case pagelem.NameAttr:
			d, err := it.Descriptor(ctx, it.Node.Naming.Value)
			if err != nil {
				return "", unsupported("name of %s: %v", it.Node, err)
			}
			return e.leaf(d)
		}
		return "", unsupported("positional names of %s", it.Node)
	}

	d, err := it.Descriptor(ctx, e.field)
	if errors.Is(err, engine.ErrNoDescriptor) {
		return "", unsupported("%s has no accessor %q", it.Node, e.field)
	}
	if err != nil {
		return "", err
	}
	return e.leaf(d)
}

// leaf renders a comparison of descriptor d.
func (e Expr) leaf(d *scope.Descriptor) (string, error) {
	var ref string
	switch d.Kind {
	case scope.DescConstant:
		return static(compare(e.op, d.Value, e.value)), nil

	case scope.DescAttrEquals, scope.DescAttrContains:
		return e.tokenLeaf(d)

	case scope.DescAttr:
		ref = "@" + d.Attr
		if d.Path != "" {
			ref = d.Path + "/@" + d.Attr
		}

	case scope.DescText:
		if d.Strip {
			return "", unsupported("stripped text %s", d.Name)
		}
		ref = "normalize-space(.)"
		if d.Path != "" {
			ref = "normalize-space(" + d.Path + ")"
		}

	default:
		return "", unsupported("%s accessor %s", d.Kind, d.Name)
	}

	switch e.op {
	case OpExists:
		return ref, nil
	case OpAbsent:
		return "not(" + ref + ")", nil
	case OpEq:
		return ref + "=" + pagelem.TextEscape(text(e.value)), nil
	case OpNe:
		return "not(" + ref + "=" + pagelem.TextEscape(text(e.value)) + ")", nil
	case OpContains:
		return "contains(" + ref + ", " + pagelem.TextEscape(text(e.value)) + ")", nil
	}
	n, ok := number(e.value)
	if !ok {
		return "", unsupported("%s needs a number, got %v", e.op, e.value)
	}
	sym := opSymbols[e.op]
	return "number(" + ref + ")" + sym + strconv.FormatFloat(n, 'f', -1, 64), nil
}

// tokenLeaf renders a comparison of a boolean token accessor with true or
// false.
func (e Expr) tokenLeaf(d *scope.Descriptor) (string, error) {
	attr := "@" + d.Attr
	if d.Path != "" {
		attr = d.Path + "/@" + d.Attr
	}
	cond := attr + "=" + pagelem.TextEscape(d.Token)
	if d.Kind == scope.DescAttrContains {
		cond = "contains(concat(' ', normalize-space(" + attr + "), ' '), " + pagelem.TextEscape(" "+d.Token+" ") + ")"
	}
	switch e.op {
	case OpExists:
		return "true()", nil
	case OpAbsent:
		return "false()", nil
	case OpEq, OpNe:
		want, ok := e.value.(bool)
		if !ok {
			return "", unsupported("%s compares true or false, got %v", d.Name, e.value)
		}
		if want != (e.op == OpEq) {
			return "not(" + cond + ")", nil
		}
		return cond, nil
	}
	return "", unsupported("%s on boolean accessor %s", e.op, d.Name)
}

func static(b bool) string {
	if b {
		return "true()"
	}
	return "false()"
}
