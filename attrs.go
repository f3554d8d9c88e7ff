package pagelem

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Attr is one attribute of a start tag. x/net/html does not distinguish a
// bare attribute from an empty value, so an empty Val means "present".
type Attr struct {
	Key string
	Val string
}

var wordRe = regexp.MustCompile(`^\w+$`)

// bindingRe splits "[name]" with an optional ":suffix" selecting the kind.
var bindingRe = regexp.MustCompile(`^\[\s*(\w*)\s*\](?::(.*))?$`)

// toBool interprets a boolean attribute: only "0" and "false" are false.
func toBool(v string) bool {
	switch v {
	case "0", "false", "False":
		return false
	}
	return true
}

// parseBinding recognises the read-binding forms of an attribute value.
func parseBinding(key, val string) (Binding, bool, error) {
	m := bindingRe.FindStringSubmatch(val)
	if m == nil {
		if strings.HasPrefix(val, "[") && strings.Contains(val, "]") {
			return Binding{}, true, fmt.Errorf("invalid read binding %q for attribute %s", val, key)
		}
		return Binding{}, false, nil
	}
	b := Binding{Name: m[1], Attr: key, Kind: BindGet}
	if b.Name == "" {
		b.Name = key
	}
	if !wordRe.MatchString(b.Name) {
		return Binding{}, true, fmt.Errorf("invalid binding name %q for attribute %s", b.Name, key)
	}
	suffix := m[2]
	switch {
	case suffix == "" && !strings.Contains(val, "]:"):
	case strings.HasPrefix(suffix, "{") && strings.HasSuffix(suffix, "}"):
		b.Kind = BindChoice
		for _, t := range strings.Split(suffix[1:len(suffix)-1], "|") {
			if t = strings.TrimSpace(t); t != "" {
				b.Tokens = append(b.Tokens, t)
			}
		}
		if len(b.Tokens) == 0 {
			return Binding{}, true, fmt.Errorf("empty choice for binding %s", b.Name)
		}
	case strings.HasPrefix(suffix, "+"):
		b.Kind = BindContains
		b.Token = suffix[1:]
	default:
		b.Kind = BindEquals
		b.Token = suffix
	}
	if (b.Kind == BindEquals || b.Kind == BindContains) && b.Token == "" {
		return Binding{}, true, fmt.Errorf("empty token for binding %s", b.Name)
	}
	return b, true, nil
}

// anySpec says which reserved attributes a member of the Any family accepts.
type anySpec struct {
	this  bool
	input bool
}

// splitAnyAttrs applies the attributes of an Any-family start tag onto e.
// e.frag must hold the bare step ("*" or the tag name) on entry.
func splitAnyAttrs(e *Element, attrs []Attr, spec anySpec) error {
	var (
		match []MatchAttr
		deep  bool
		ctrl  bool
	)
	for _, a := range attrs {
		switch a.Key {
		case "this":
			if !spec.this {
				return fmt.Errorf("%s does not accept this=", e.Tag)
			}
			rule, err := parseNamingRule(a.Val)
			if err != nil {
				return err
			}
			e.Naming = rule
		case "slot":
			e.Slot = a.Val
		case "pe-deep":
			deep = true
		case "pe-optional":
			e.Optional = toBool(a.Val)
		case "pe-controller", "pe-ctrl":
			if ctrl {
				return errors.New("attribute pe-controller defined more than once")
			}
			if a.Val == "" {
				return errors.New("pe-controller needs a scope class name")
			}
			ctrl = true
			e.Controller = a.Val
		case "pe-not":
			if toBool(a.Val) {
				if e.Kind != NodeAny {
					return fmt.Errorf("<%s> cannot be a negative match", e.Tag)
				}
				e.Kind = NodeNot
			}
		case "pe-input":
			if !spec.input {
				return fmt.Errorf("%s does not accept pe-input", e.Tag)
			}
			switch a.Val {
			case "", "native":
				e.Input = InputNative
			case "type":
				e.Input = InputType
			case "combi":
				e.Input = InputCombi
			default:
				return fmt.Errorf("unknown input mode %q", a.Val)
			}
		default:
			if strings.Contains(a.Key, ".") {
				return fmt.Errorf("invalid attribute name %q", a.Key)
			}
			b, ok, err := parseBinding(a.Key, a.Val)
			if err != nil {
				return err
			}
			if ok {
				for _, prev := range e.Bindings {
					if prev.Name == b.Name || prev.Attr == a.Key {
						return fmt.Errorf("attribute defined more than once: %s", a.Key)
					}
				}
				e.Bindings = append(e.Bindings, b)
				continue
			}
			c := parseMatchValue(a.Val, a.Val != "")
			i := slices.IndexFunc(match, func(m MatchAttr) bool { return m.Name == a.Key })
			if i < 0 {
				match = append(match, MatchAttr{Name: a.Key})
				i = len(match) - 1
			}
			match[i].Clauses = append(match[i].Clauses, c)
		}
	}

	if spec.input {
		if err := splitInputName(e, &match); err != nil {
			return err
		}
	}

	if deep {
		e.frag = ".//" + e.frag
	}
	e.MatchAttrs = match
	e.frag += matchXPath(match)
	names := make([]string, len(match))
	for i, m := range match {
		names[i] = m.Name
	}
	e.fragScore += scoreAttrs(names)
	return nil
}

// splitInputName decides which remote name an input exposes its value as.
func splitInputName(e *Element, match *[]MatchAttr) error {
	i := slices.IndexFunc(*match, func(m MatchAttr) bool { return m.Name == "name" })
	if i < 0 {
		e.InputName = "*"
		hasID := slices.ContainsFunc(*match, func(m MatchAttr) bool { return m.Name == "id" })
		if !hasID && e.Naming.Kind == NameNone {
			return errors.New("an input element must be identified by 'id' or 'name'")
		}
		return nil
	}
	cl := (*match)[i].Clauses
	if len(cl) == 1 && cl[0].Op == MatchEquals && cl[0].Value == "*" {
		*match = slices.Delete(*match, i, i+1)
		e.InputName = "*"
		return nil
	}
	if cl[0].Op != MatchEquals {
		return errors.New("input name must be a plain value")
	}
	e.InputName = cl[0].Value
	return nil
}

// plainAttrs reads the attributes of a non-matching node. Every key must
// be listed in allowed; the result maps key to value.
func plainAttrs(tag string, attrs []Attr, allowed ...string) (map[string]string, error) {
	out := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if !slices.Contains(allowed, a.Key) {
			return nil, fmt.Errorf("<%s> does not accept attribute %q", tag, a.Key)
		}
		if _, dup := out[a.Key]; dup {
			return nil, fmt.Errorf("attribute defined more than once: %s", a.Key)
		}
		out[a.Key] = a.Val
	}
	return out, nil
}

func requireAttr(tag string, m map[string]string, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == "" {
		return "", fmt.Errorf("<%s> requires attribute %q", tag, key)
	}
	return v, nil
}

func buildPeAny(tag string, attrs []Attr) (*Element, error) {
	e := &Element{Kind: NodeAny, Tag: tag, frag: "*"}
	return e, splitAnyAttrs(e, attrs, anySpec{})
}

func buildGeneric(tag string, attrs []Attr) (*Element, error) {
	e := &Element{Kind: NodeAny, Tag: tag, frag: tag, fragScore: tagScore}
	return e, splitAnyAttrs(e, attrs, anySpec{})
}

func buildNamed(tag string, attrs []Attr) (*Element, error) {
	e := &Element{Kind: NodeNamed, Tag: tag, frag: tag, fragScore: tagScore}
	if tag == "pe-any" {
		e.frag, e.fragScore = "*", 0
	}
	if err := splitAnyAttrs(e, attrs, anySpec{this: true}); err != nil {
		return e, err
	}
	if e.Naming.Kind == NameNone {
		return e, errors.New("named element needs a non-empty this=")
	}
	return e, nil
}

func buildInput(tag string, attrs []Attr) (*Element, error) {
	e := &Element{Kind: NodeInput, Tag: tag, frag: tag, fragScore: tagScore}
	// Inputs are only ever named with a literal.
	for _, a := range attrs {
		if a.Key == "this" {
			rule, err := parseNamingRule(a.Val)
			if err != nil {
				return e, err
			}
			if rule.Kind != NameFixed {
				return e, errors.New("an input can only be named with a literal")
			}
		}
	}
	return e, splitAnyAttrs(e, attrs, anySpec{this: true, input: true})
}

func buildBody(tag string, attrs []Attr) (*Element, error) {
	e := &Element{Kind: NodeBody, Tag: tag, frag: tag, fragScore: tagScore}
	return e, splitAnyAttrs(e, attrs, anySpec{})
}

func buildHTML(tag string, attrs []Attr) (*Element, error) {
	return &Element{Kind: NodeRoot, Tag: tag}, nil
}

func buildHead(tag string, attrs []Attr) (*Element, error) {
	return &Element{Kind: NodeHead, Tag: tag}, nil
}

func buildScript(tag string, attrs []Attr) (*Element, error) {
	return &Element{Kind: NodeScript, Tag: tag}, nil
}

func buildDeep(tag string, attrs []Attr) (*Element, error) {
	if len(attrs) > 0 {
		return nil, fmt.Errorf("<%s> cannot have attributes", tag)
	}
	return &Element{Kind: NodeDeep, Tag: tag}, nil
}

func buildRootReset(tag string, attrs []Attr) (*Element, error) {
	if len(attrs) > 0 {
		return nil, fmt.Errorf("<%s> cannot have attributes", tag)
	}
	return &Element{Kind: NodeRootReset, Tag: tag}, nil
}

func buildRepeat(tag string, attrs []Attr) (*Element, error) {
	m, err := plainAttrs(tag, attrs, "min", "max", "this", "slot", "pe-optional")
	if err != nil {
		return nil, err
	}
	e := &Element{Kind: NodeRepeat, Tag: tag, Min: 0, Max: 1000000}
	if v, ok := m["min"]; ok {
		if e.Min, err = strconv.Atoi(v); err != nil || e.Min < 0 {
			return nil, fmt.Errorf("invalid min=%q", v)
		}
	}
	if v, ok := m["max"]; ok {
		if e.Max, err = strconv.Atoi(v); err != nil || e.Max < 1 {
			return nil, fmt.Errorf("invalid max=%q", v)
		}
	}
	if e.Max < e.Min {
		return nil, fmt.Errorf("max=%d is below min=%d", e.Max, e.Min)
	}
	if e.Naming, err = parseNamingRule(m["this"]); err != nil {
		return nil, err
	}
	e.Slot = m["slot"]
	if v, ok := m["pe-optional"]; ok {
		e.Optional = toBool(v)
	}
	return e, nil
}

func buildChoice(tag string, attrs []Attr) (*Element, error) {
	return buildCombinator(NodeChoice, tag, attrs)
}

// A group can open a controller scope for its children, a choice cannot.
func buildGroup(tag string, attrs []Attr) (*Element, error) {
	return buildCombinator(NodeGroup, tag, attrs, "pe-controller", "pe-ctrl")
}

func buildCombinator(kind NodeKind, tag string, attrs []Attr, extra ...string) (*Element, error) {
	m, err := plainAttrs(tag, attrs, append([]string{"slot", "pe-optional"}, extra...)...)
	if err != nil {
		return nil, err
	}
	e := &Element{Kind: kind, Tag: tag, Slot: m["slot"]}
	if v, ok := m["pe-optional"]; ok {
		e.Optional = toBool(v)
	}
	if e.Controller, err = controllerAttr(m); err != nil {
		return nil, err
	}
	return e, nil
}

// controllerAttr reads pe-controller or its short form pe-ctrl.
func controllerAttr(m map[string]string) (string, error) {
	c := m["pe-controller"]
	if s := m["pe-ctrl"]; s != "" {
		if c != "" {
			return "", errors.New("attribute pe-controller defined more than once")
		}
		c = s
	}
	return c, nil
}

func buildMatchID(tag string, attrs []Attr) (*Element, error) {
	m, err := plainAttrs(tag, attrs, "id", "this", "slot", "pe-optional", "pe-controller", "pe-ctrl")
	if err != nil {
		return nil, err
	}
	e := &Element{Kind: NodeMatchByID, Tag: tag, Slot: m["slot"]}
	if e.IDExpr, err = requireAttr(tag, m, "id"); err != nil {
		return nil, err
	}
	if v, ok := m["this"]; ok {
		if e.Naming, err = parseNamingRule(v); err != nil {
			return nil, err
		}
		if e.Naming.Kind != NameFixed {
			return nil, errors.New("match-by-id can only be named with a literal")
		}
	}
	if v, ok := m["pe-optional"]; ok {
		e.Optional = toBool(v)
	}
	if e.Controller, err = controllerAttr(m); err != nil {
		return nil, err
	}
	return e, nil
}

func buildRegex(tag string, attrs []Attr) (*Element, error) {
	m, err := plainAttrs(tag, attrs, "name", "this")
	if err != nil {
		return nil, err
	}
	e := &Element{Kind: NodeRegex, Tag: tag, BindName: m["name"]}
	if t := m["this"]; t != "" {
		if e.BindName != "" {
			return nil, errors.New("pe-regex takes either name= or this=")
		}
		e.BindName = t
	}
	if e.BindName != "" && !wordRe.MatchString(e.BindName) {
		return nil, fmt.Errorf("invalid attribute name %q", e.BindName)
	}
	return e, nil
}

func buildData(tag string, attrs []Attr) (*Element, error) {
	m, err := plainAttrs(tag, attrs, "name", "value", "slot", "pe-scope")
	if err != nil {
		return nil, err
	}
	e := &Element{Kind: NodeScopedData, Tag: tag, Slot: m["slot"]}
	if e.BindName, err = requireAttr(tag, m, "name"); err != nil {
		return nil, err
	}
	if v, ok := m["value"]; ok {
		e.Value = v
	}
	if v, ok := m["pe-scope"]; ok {
		e.Export = toBool(v)
	}
	return e, nil
}

func buildTemplate(tag string, attrs []Attr) (*Element, error) {
	m, err := plainAttrs(tag, attrs, "id")
	if err != nil {
		return nil, err
	}
	e := &Element{Kind: NodeTemplate, Tag: tag}
	e.ID, err = requireAttr(tag, m, "id")
	return e, err
}

func buildSlot(tag string, attrs []Attr) (*Element, error) {
	m, err := plainAttrs(tag, attrs, "name")
	if err != nil {
		return nil, err
	}
	e := &Element{Kind: NodeSlot, Tag: tag}
	e.ID, err = requireAttr(tag, m, "name")
	return e, err
}

func buildSlotContent(tag string, attrs []Attr) (*Element, error) {
	if len(attrs) > 0 {
		return nil, fmt.Errorf("<%s> cannot have attributes", tag)
	}
	return &Element{Kind: NodeSlotContent, Tag: tag}, nil
}

func buildUseTemplate(tag string, attrs []Attr) (*Element, error) {
	m, err := plainAttrs(tag, attrs, "id")
	if err != nil {
		return nil, err
	}
	e := &Element{Kind: NodeUseTemplate, Tag: tag, BySlot: map[string]*Element{}}
	e.ID, err = requireAttr(tag, m, "id")
	return e, err
}

func buildLink(tag string, attrs []Attr) (*Element, error) {
	m, err := plainAttrs(tag, attrs, "rel", "href", "title", "url", "type")
	if err != nil {
		return nil, err
	}
	e := &Element{Kind: NodeLink, Tag: tag, Title: m["title"]}
	if e.Rel, err = requireAttr(tag, m, "rel"); err != nil {
		return nil, err
	}
	if e.Href, err = requireAttr(tag, m, "href"); err != nil {
		return nil, err
	}
	return e, nil
}
