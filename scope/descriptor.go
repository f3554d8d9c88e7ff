// Package scope holds the named accessors of resolved components and the
// hierarchical frames they are resolved in.
//
// A Descriptor is one get/set accessor. Descriptors are declared either by
// the template itself (attribute and text bindings, regex groups, inputs,
// scoped data) or by a Class, which groups component and page descriptors
// along an inheritance chain. An Instance is the runtime frame of a Class:
// it carries variables, slot substitutions and the stale recovery flag.
package scope

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/remote"
)

// ErrReadOnly is returned when setting a descriptor that cannot be written.
var ErrReadOnly = errors.New("scope: descriptor is read-only")

// ErrWriteOnly is returned when reading an action descriptor.
var ErrWriteOnly = errors.New("scope: descriptor is write-only")

// DescKind is the closed set of descriptor variants.
type DescKind int

const (
	DescAttr DescKind = iota + 1
	DescAttrEquals
	DescAttrContains
	DescAttrChoice
	DescText
	DescPartialText
	DescRegex
	DescInput
	DescConstant
	DescAction
	DescScript
)

var descKindNames = map[DescKind]string{
	DescAttr:         "attr",
	DescAttrEquals:   "attr-equals",
	DescAttrContains: "attr-contains",
	DescAttrChoice:   "attr-choice",
	DescText:         "text",
	DescPartialText:  "partial-text",
	DescRegex:        "regex",
	DescInput:        "input",
	DescConstant:     "constant",
	DescAction:       "action",
	DescScript:       "script",
}

func (k DescKind) String() string {
	if s, ok := descKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("desc(%d)", int(k))
}

// Descriptor is a named accessor bound to a component.
type Descriptor struct {
	Kind DescKind
	Name string

	// Path locates the node to read, relative to the component. Empty
	// means the component itself.
	Path string
	// Attr is the attribute read by the attribute and input kinds.
	Attr     string
	Optional bool

	// Token and Tokens parameterise the equals, contains and choice kinds.
	Token  string
	Tokens []string

	Strip         bool
	After, Before string

	Regex *regexp.Regexp
	// Group selects a named group of Regex; empty is the whole match.
	Group string

	Input pagelem.InputMode
	Value any

	// Action runs when the descriptor is set.
	Action Action
	// Script is a function body evaluated in the page.
	Script string
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s(%s)", d.Kind, d.Name)
}

// Readable reports whether Get can succeed on d.
func (d *Descriptor) Readable() bool { return d.Kind != DescAction }

// Target is what a descriptor is evaluated against.
type Target struct {
	Backend remote.Backend
	Handle  remote.Handle
}

func (t Target) node(ctx context.Context, d *Descriptor) (remote.Handle, error) {
	if d.Path == "" || d.Path == "." {
		return t.Handle, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hs, err := t.Backend.FindByPath(ctx, t.Handle, d.Path)
	if err != nil {
		return nil, backendErr(d, err)
	}
	if len(hs) == 0 {
		if d.Optional {
			return nil, nil
		}
		return nil, pagelem.NotFound(d.Path, t.Handle)
	}
	return hs[0], nil
}

func backendErr(d *Descriptor, err error) error {
	if errors.Is(err, remote.ErrStale) {
		return pagelem.Stale(d.Name, err)
	}
	return fmt.Errorf("scope: %s: %w", d, err)
}

// Get reads the descriptor against t. Optional descriptors whose node or
// value is missing read as nil.
func (d *Descriptor) Get(ctx context.Context, t Target) (any, error) {
	switch d.Kind {
	case DescConstant:
		return d.Value, nil
	case DescAction:
		return nil, fmt.Errorf("%w: %s", ErrWriteOnly, d.Name)
	case DescScript:
		ev, ok := t.Backend.(remote.Evaluator)
		if !ok {
			return nil, fmt.Errorf("scope: %s: %w", d, remote.ErrUnsupported)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := ev.Eval(ctx, d.Script)
		if err != nil {
			return nil, backendErr(d, err)
		}
		return v, nil
	}

	h, err := t.node(ctx, d)
	if err != nil || h == nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch d.Kind {
	case DescAttr, DescInput:
		v, ok, err := t.Backend.Attribute(ctx, h, d.Attr)
		if err != nil {
			return nil, backendErr(d, err)
		}
		if !ok {
			if d.Optional || d.Kind == DescInput {
				return nil, nil
			}
			return nil, pagelem.NotFound(d.locator(), h)
		}
		return v, nil

	case DescAttrEquals, DescAttrContains, DescAttrChoice:
		v, ok, err := t.Backend.Attribute(ctx, h, d.Attr)
		if err != nil {
			return nil, backendErr(d, err)
		}
		switch d.Kind {
		case DescAttrEquals:
			return ok && v == d.Token, nil
		case DescAttrContains:
			return ok && slices.Contains(strings.Fields(v), d.Token), nil
		}
		words := strings.Fields(v)
		for _, tok := range d.Tokens {
			if slices.Contains(words, tok) {
				return tok, nil
			}
		}
		return nil, nil

	case DescText:
		return d.text(ctx, t.Backend, h)

	case DescPartialText:
		pt, ok := t.Backend.(remote.PartialTexter)
		if !ok {
			return d.text(ctx, t.Backend, h)
		}
		s, err := pt.PartialText(ctx, h, d.After, d.Before)
		if err != nil {
			return nil, backendErr(d, err)
		}
		if d.Strip {
			s = strings.TrimSpace(s)
		}
		return s, nil

	case DescRegex:
		s, err := d.text(ctx, t.Backend, h)
		if err != nil {
			return nil, err
		}
		m := d.Regex.FindStringSubmatch(s.(string))
		if m == nil {
			if d.Optional {
				return nil, nil
			}
			return nil, pagelem.NotFound(d.Regex.String(), h)
		}
		if d.Group == "" {
			return m[0], nil
		}
		i := d.Regex.SubexpIndex(d.Group)
		if i < 0 {
			return nil, fmt.Errorf("scope: %s: no group %q", d, d.Group)
		}
		return m[i], nil
	}
	return nil, fmt.Errorf("scope: %s: unknown descriptor kind", d)
}

func (d *Descriptor) text(ctx context.Context, b remote.Backend, h remote.Handle) (any, error) {
	s, err := b.Text(ctx, h)
	if err != nil {
		return nil, backendErr(d, err)
	}
	if s == "" {
		// Hidden nodes have no rendered text.
		if v, ok, err := b.Attribute(ctx, h, "innerText"); err == nil && ok {
			s = v
		}
	}
	if d.Strip {
		s = strings.TrimSpace(s)
	}
	return s, nil
}

func (d *Descriptor) locator() string {
	if d.Path == "" {
		return "@" + d.Attr
	}
	return d.Path + "/@" + d.Attr
}

// Set writes value through d. An Action value is performed on the
// descriptor's node whatever the descriptor kind.
func (d *Descriptor) Set(ctx context.Context, t Target, value any) error {
	if act, ok := value.(Action); ok {
		return d.act(ctx, t, act, nil)
	}
	switch d.Kind {
	case DescAction:
		return d.act(ctx, t, d.Action, value)
	case DescInput:
		return d.setInput(ctx, t, value)
	}
	return fmt.Errorf("%w: %s", ErrReadOnly, d)
}

func (d *Descriptor) act(ctx context.Context, t Target, act Action, arg any) error {
	w, ok := t.Backend.(remote.Writer)
	if !ok {
		return fmt.Errorf("scope: %s: %w", d, remote.ErrUnsupported)
	}
	h, err := t.node(ctx, d)
	if err != nil {
		return err
	}
	if h == nil {
		return pagelem.NotFound(d.Path, t.Handle)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := act(ctx, w, h, arg); err != nil {
		return backendErr(d, err)
	}
	return nil
}

func (d *Descriptor) setInput(ctx context.Context, t Target, value any) error {
	s := ""
	if value != nil {
		s = fmt.Sprint(value)
	}
	return d.act(ctx, t, func(ctx context.Context, w remote.Writer, h remote.Handle, _ any) error {
		switch d.Input {
		case pagelem.InputType:
			if err := w.Clear(ctx, h); err != nil {
				return err
			}
			if s == "" {
				return nil
			}
			return w.SendKeys(ctx, h, s)
		case pagelem.InputCombi:
			if s == "" {
				return w.SetProperty(ctx, h, d.Attr, "")
			}
			r := []rune(s)
			if err := w.SetProperty(ctx, h, d.Attr, string(r[:len(r)-1])); err != nil {
				return err
			}
			return w.SendKeys(ctx, h, remote.KeyEnd+string(r[len(r)-1]))
		}
		return w.SetProperty(ctx, h, d.Attr, s)
	}, nil)
}
