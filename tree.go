package pagelem

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/antchfx/xpath"
)

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// Validate checks that every compiled fragment and locator is a valid
// XPath 1.0 expression.
func (t *Template) Validate() error {
	var err error
	check := func(e *Element) bool {
		if err != nil {
			return false
		}
		for _, p := range []string{e.frag, e.locator.Path} {
			if p == "" {
				continue
			}
			if _, cerr := xpath.Compile(p); cerr != nil {
				err = parseErrorf(e.Pos, "%s: invalid locator %q: %v", e, p, cerr)
				return false
			}
		}
		return true
	}
	t.Root.Walk(check)
	for _, k := range sortedKeys(t.Templates) {
		t.Templates[k].Walk(check)
	}
	return err
}

// TreeEntry is one line of Template.Tree.
type TreeEntry struct {
	Depth   int
	Name    string
	Kind    NodeKind
	Locator string
	Score   int
}

// Tree lists the component-producing nodes of the template in document
// order. Depth counts only the listed ancestors.
func (t *Template) Tree() []TreeEntry {
	var out []TreeEntry
	var walk func(e *Element, depth int)
	walk = func(e *Element, depth int) {
		if name, ok := treeName(e); ok {
			out = append(out, TreeEntry{
				Depth:   depth,
				Name:    name,
				Kind:    e.Kind,
				Locator: e.locator.Path,
				Score:   e.locator.Score,
			})
			depth++
		}
		for _, c := range e.Children {
			walk(c, depth)
		}
		for _, k := range sortedKeys(e.BySlot) {
			walk(e.BySlot[k], depth)
		}
	}
	walk(t.Root, 0)
	return out
}

func treeName(e *Element) (string, bool) {
	switch e.Kind {
	case NodeNamed:
		if e.Naming.Kind == NameNone {
			return "%d", true
		}
		return e.Naming.String(), true
	case NodeMatchByID, NodeInput:
		if e.Naming.Kind != NameNone {
			return e.Naming.String(), true
		}
	case NodeRepeat:
		if e.Naming.Kind == NameFixed {
			return e.Naming.Value, true
		}
	case NodeTextBinding, NodeRegex, NodeScopedData:
		if e.BindName != "" {
			return "@" + e.BindName, true
		}
	}
	return "", false
}

// WriteTree prints Tree as an indented listing.
func (t *Template) WriteTree(w io.Writer) error {
	for _, en := range t.Tree() {
		indent := strings.Repeat("  ", en.Depth)
		var err error
		if en.Locator != "" {
			_, err = fmt.Fprintf(w, "%s%s\t%s\t%s\n", indent, en.Name, en.Kind, en.Locator)
		} else {
			_, err = fmt.Fprintf(w, "%s%s\t%s\n", indent, en.Name, en.Kind)
		}
		if err != nil {
			return fmt.Errorf("pagelem: write tree: %w", err)
		}
	}
	return nil
}
