package pagelem

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// reduce simplifies a freshly closed node. It returns the node that takes
// its place in the parent, or nil when the node disappears.
func reduce(e *Element) (*Element, error) {
	switch e.Kind {
	case NodeAny:
		reduceText(e)
		if c := mergeableChild(e); c != nil {
			c.frag = PrependXPath(e.frag+"/", c.frag, "")
			c.fragScore += e.fragScore
			c.Optional = c.Optional || e.Optional
			return c, nil
		}
	case NodeDeep:
		if len(e.Children) == 1 {
			c := e.Children[0]
			if c.Kind == NodeAny || c.Kind == NodeNamed {
				c.frag = PrependXPath(".//", c.frag, "")
				return c, nil
			}
		}
		reduceText(e)
	case NodeChoice, NodeGroup:
		switch {
		case len(e.Children) == 0:
			return nil, nil
		case len(e.Children) == 1 && !e.Optional && e.Slot == "" && e.Controller == "":
			return e.Children[0], nil
		}
		reduceText(e)
	case NodeRepeat:
		return reduceRepeat(e)
	case NodeRegex:
		return reduceRegex(e)
	case NodeScopedData:
		return reduceData(e)
	case NodeHead:
		if len(e.Children) == 0 {
			return nil, nil
		}
	case NodeScript:
		return nil, nil
	default:
		reduceText(e)
	}
	return e, nil
}

// mergeableChild returns the single Named child an unnamed Any node can
// fold into, or nil.
func mergeableChild(e *Element) *Element {
	if len(e.Children) != 1 || len(e.Bindings) > 0 || e.Slot != "" || e.Controller != "" {
		return nil
	}
	if c := e.Children[0]; c.Kind == NodeNamed {
		return c
	}
	return nil
}

// reduceText decides, for text children, whether they must match exactly
// and which neighbours bound a partial text binding.
func reduceText(e *Element) {
	var prev *Element
	for _, c := range e.Children {
		switch {
		case c.Kind == NodeText && prev != nil:
			c.Exact = false
		case prev != nil && prev.Kind == NodeText:
			prev.Exact = false
		case c.Kind == NodeTextBinding && prev != nil:
			c.After = tagOf(prev)
			c.Partial = true
		case prev != nil && prev.Kind == NodeTextBinding:
			prev.Before = tagOf(c)
			prev.Partial = true
		}
		prev = c
	}
}

func tagOf(e *Element) string {
	if e.isTag() {
		return strings.ToUpper(e.Tag)
	}
	return "*"
}

func reduceRepeat(e *Element) (*Element, error) {
	if len(e.Children) != 1 {
		return nil, parseErrorf(e.Pos, "%s must have exactly one child, has %d", e, len(e.Children))
	}
	c := e.Children[0]
	if c.Kind == NodeAny {
		c.Kind = NodeNamed
		switch {
		case e.Naming.Kind == NameAttr || e.Naming.Kind == NamePattern:
			c.Naming = e.Naming
		case hasBinding(c, "id"):
			c.Naming = NamingRule{Kind: NameAttr, Value: "id"}
		default:
			c.Naming = NamingRule{}
		}
	}
	return e, nil
}

func hasBinding(e *Element, name string) bool {
	for _, b := range e.Bindings {
		if b.Name == name {
			return true
		}
	}
	return false
}

func reduceRegex(e *Element) (*Element, error) {
	var src strings.Builder
	for _, c := range e.Children {
		src.WriteString(c.Text)
	}
	e.Children = nil
	e.Text = strings.TrimSpace(src.String())
	if e.Text == "" {
		return nil, parseErrorf(e.Pos, "%s has an empty expression", e)
	}
	re, err := regexp.Compile("^(?:" + e.Text + ")")
	if err != nil {
		return nil, parseErrorf(e.Pos, "%s: %v", e, err)
	}
	e.Regex = re
	if e.BindName == "" && !hasNamedGroup(re) {
		return nil, parseErrorf(e.Pos, "%s binds nothing: give it a name or named groups", e)
	}
	return e, nil
}

func hasNamedGroup(re *regexp.Regexp) bool {
	for _, n := range re.SubexpNames() {
		if n != "" {
			return true
		}
	}
	return false
}

func reduceData(e *Element) (*Element, error) {
	var body strings.Builder
	for _, c := range e.Children {
		body.WriteString(c.Text)
	}
	e.Children = nil
	src := strings.TrimSpace(body.String())
	switch {
	case e.Value != nil:
		return e, nil
	case src == "":
		return nil, parseErrorf(e.Pos, "%s needs value= or a JSON body", e)
	}
	if err := json.Unmarshal([]byte(src), &e.Value); err != nil {
		var se *json.SyntaxError
		if errors.As(err, &se) {
			return nil, parseErrorf(e.Pos, "%s: invalid JSON at offset %d: %v", e, se.Offset, err)
		}
		return nil, parseErrorf(e.Pos, "%s: %v", e, fmt.Errorf("decode: %w", err))
	}
	return e, nil
}
