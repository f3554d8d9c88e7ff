package pagelem

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NodeKind is the closed set of element definition variants.
type NodeKind int

const (
	NodeRoot NodeKind = iota + 1
	NodeHead
	NodeBody
	NodeAny
	NodeNamed
	NodeText
	NodeTextBinding
	NodeRepeat
	NodeChoice
	NodeGroup
	NodeDeep
	NodeRootReset
	NodeMatchByID
	NodeInput
	NodeRegex
	NodeTemplate
	NodeSlot
	NodeSlotContent
	NodeUseTemplate
	NodeLink
	NodeScopedData
	NodeNot
	NodeScript
)

var nodeKindNames = map[NodeKind]string{
	NodeRoot:        "root",
	NodeHead:        "head",
	NodeBody:        "body",
	NodeAny:         "any",
	NodeNamed:       "named",
	NodeText:        "text",
	NodeTextBinding: "text-binding",
	NodeRepeat:      "repeat",
	NodeChoice:      "choice",
	NodeGroup:       "group",
	NodeDeep:        "deep",
	NodeRootReset:   "root-reset",
	NodeMatchByID:   "match-by-id",
	NodeInput:       "input",
	NodeRegex:       "regex",
	NodeTemplate:    "template",
	NodeSlot:        "slot",
	NodeSlotContent: "slot-content",
	NodeUseTemplate: "use-template",
	NodeLink:        "link",
	NodeScopedData:  "scoped-data",
	NodeNot:         "not",
	NodeScript:      "script",
}

func (k NodeKind) String() string {
	if s, ok := nodeKindNames[k]; ok {
		return s
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// isContainer reports whether nodes of kind k hold element children that
// take part in resolution.
func (k NodeKind) isContainer() bool {
	switch k {
	case NodeRoot, NodeBody, NodeAny, NodeNamed, NodeRepeat, NodeChoice, NodeGroup,
		NodeDeep, NodeRootReset, NodeMatchByID, NodeTemplate, NodeSlot,
		NodeUseTemplate, NodeNot, NodeInput:
		return true
	}
	return false
}

// isEmpty reports whether kind k never has children and is closed as soon
// as the next token arrives.
func (k NodeKind) isEmpty() bool {
	switch k {
	case NodeText, NodeTextBinding, NodeInput, NodeLink, NodeSlotContent:
		return true
	}
	return false
}

// BindKind selects the descriptor produced by an attribute read-binding.
type BindKind int

const (
	// BindGet reads the attribute value.
	BindGet BindKind = iota
	// BindEquals compares the whole value with a token.
	BindEquals
	// BindContains tests for a token among the space separated words.
	BindContains
	// BindChoice returns the first of an ordered token list present.
	BindChoice
)

// Binding is a read-attribute declaration: name="[inner]" and variants.
type Binding struct {
	Name   string
	Attr   string
	Kind   BindKind
	Token  string
	Tokens []string
}

// NamingKind is the source of a Named node's component name.
type NamingKind int

const (
	NameNone NamingKind = iota
	// NameFixed is a literal name.
	NameFixed
	// NameAttr takes the name from a read-binding of the matched node.
	NameAttr
	// NamePattern substitutes the positional index into %s or %d.
	NamePattern
)

// NamingRule derives component names for a Named node.
type NamingRule struct {
	Kind  NamingKind
	Value string
}

func parseNamingRule(s string) (NamingRule, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return NamingRule{}, nil
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		inner := s[1 : len(s)-1]
		if !wordRe.MatchString(inner) {
			return NamingRule{}, fmt.Errorf("invalid attribute name %q", inner)
		}
		return NamingRule{Kind: NameAttr, Value: inner}, nil
	case strings.Contains(s, "%s") || strings.Contains(s, "%d"):
		return NamingRule{Kind: NamePattern, Value: s}, nil
	}
	return NamingRule{Kind: NameFixed, Value: s}, nil
}

// Format renders a positional pattern for index n.
func (r NamingRule) Format(n int) string {
	idx := strconv.Itoa(n)
	v := strings.Replace(r.Value, "%s", idx, 1)
	return strings.Replace(v, "%d", idx, 1)
}

// Accepts reports whether a component called name could come from r.
func (r NamingRule) Accepts(name string) bool {
	if r.Kind == NameFixed {
		return r.Value == name
	}
	return true
}

func (r NamingRule) String() string {
	switch r.Kind {
	case NameFixed, NamePattern:
		return r.Value
	case NameAttr:
		return "[" + r.Value + "]"
	}
	return ""
}

// InputMode is the write strategy of an input value descriptor.
type InputMode int

const (
	// InputNative sets the value property directly.
	InputNative InputMode = iota
	// InputType clears the field and types the value.
	InputType
	// InputCombi sets all but the last character and types the last one.
	InputCombi
)

// Element is one node of a compiled page template.
type Element struct {
	Kind     NodeKind
	Tag      string
	Children []*Element
	Pos      Position

	MatchAttrs []MatchAttr
	Bindings   []Binding

	Optional   bool
	Slot       string
	Controller string
	Naming     NamingRule

	// Repeat bounds.
	Min, Max int

	// Text holds literal text, the raw regex source or raw pe-data body.
	Text string
	// Exact is set when literal text must equal the node text.
	Exact bool

	// BindName is the descriptor name of a text binding, regex or
	// scoped data node.
	BindName string
	Strip    bool
	After    string
	Before   string
	Partial  bool

	Regex *regexp.Regexp

	Value  any
	Export bool

	// InputName is the remote name of an input, "*" for all of them.
	InputName string
	Input     InputMode

	// IDExpr is the expression of a match-by-id node.
	IDExpr string

	// ID names a template, slot or referenced template.
	ID     string
	BySlot map[string]*Element

	Rel, Href, Title string

	frag      string
	fragScore int
	locator   Locator
}

// Locator is a compiled path expression and the specificity it consumed.
type Locator struct {
	Path  string
	Score int
}

// Fragment is the node's own path step, without child clauses.
func (e *Element) Fragment() string { return e.frag }

// Locator returns the compiled top-level locator of the node.
func (e *Element) Locator() Locator { return e.locator }

// XPath is shorthand for Locator().Path.
func (e *Element) XPath() string { return e.locator.Path }

// isTag reports whether e carries a concrete HTML tag name.
func (e *Element) isTag() bool {
	switch e.Kind {
	case NodeAny, NodeNamed, NodeInput, NodeBody, NodeNot:
		return e.Tag != "" && e.Tag != "pe-any"
	}
	return false
}

func (e *Element) String() string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(e.Kind.String())
	if e.Tag != "" {
		b.WriteString(" ")
		b.WriteString(e.Tag)
	}
	if e.Naming.Kind != NameNone {
		b.WriteString(" this=")
		b.WriteString(strconv.Quote(e.Naming.String()))
	}
	if e.Pos.Line > 0 {
		b.WriteString(" @")
		b.WriteString(e.Pos.String())
	}
	b.WriteString(">")
	return b.String()
}

// Walk calls fn for e and every descendant in document order, stopping the
// descent below a node when fn returns false.
func (e *Element) Walk(fn func(*Element) bool) {
	if !fn(e) {
		return
	}
	for _, c := range e.Children {
		c.Walk(fn)
	}
	for _, k := range sortedKeys(e.BySlot) {
		e.BySlot[k].Walk(fn)
	}
}

// Template is the product of parsing one source file.
type Template struct {
	Name      string
	Root      *Element
	Templates map[string]*Element
	Links     []*Element

	byID map[string]*Element
}

// Lookup returns the element whose id attribute is matched literally.
func (t *Template) Lookup(id string) (*Element, bool) {
	e, ok := t.byID[id]
	return e, ok
}

// Template returns the sub-template declared with <template id=...>.
func (t *Template) Template(id string) (*Element, bool) {
	e, ok := t.Templates[id]
	return e, ok
}

func (t *Template) index() {
	t.byID = make(map[string]*Element)
	visit := func(e *Element) bool {
		for _, a := range e.MatchAttrs {
			if a.Name != "id" || len(a.Clauses) != 1 || a.Clauses[0].Op != MatchEquals {
				continue
			}
			if _, dup := t.byID[a.Clauses[0].Value]; !dup {
				t.byID[a.Clauses[0].Value] = e
			}
		}
		return true
	}
	t.Root.Walk(visit)
	for _, k := range sortedKeys(t.Templates) {
		t.Templates[k].Walk(visit)
	}
}
