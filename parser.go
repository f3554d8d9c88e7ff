package pagelem

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
)

type parseConfig struct {
	registry    *Registry
	logger      *slog.Logger
	file        string
	controllers func(name string) bool
}

// Option customises Parse.
type Option func(*parseConfig)

// WithRegistry parses with a custom tag registry instead of Standard().
func WithRegistry(r *Registry) Option { return func(c *parseConfig) { c.registry = r } }

// WithLogger sets the logger for parse warnings. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *parseConfig) { c.logger = l } }

// WithFile names the source in positions and in Template.Name.
func WithFile(name string) Option { return func(c *parseConfig) { c.file = name } }

// WithControllers rejects pe-controller values for which known is false.
func WithControllers(known func(name string) bool) Option {
	return func(c *parseConfig) { c.controllers = known }
}

// ParseReader reads r fully and parses it.
func ParseReader(r io.Reader, opts ...Option) (*Template, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("pagelem: read: %w", err)
	}
	return Parse(src, opts...)
}

// Parse compiles page-element markup into a Template.
func Parse(src []byte, opts ...Option) (*Template, error) {
	cfg := parseConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = Standard()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	p := &parser{
		cfg:       cfg,
		root:      &Element{Kind: NodeRoot},
		templates: make(map[string]*Element),
		line:      1,
		col:       1,
	}
	p.root.Pos = Position{File: cfg.file, Line: 1, Col: 1}
	p.stack = []*Element{p.root}
	if err := p.run(protectRawText(src)); err != nil {
		return nil, err
	}
	return p.finish()
}

type parser struct {
	cfg       parseConfig
	root      *Element
	stack     []*Element
	templates map[string]*Element
	links     []*Element
	sawHTML   bool

	// closedEmpty is the tag of the last empty element closed implicitly,
	// so that an explicit </input> or </textarea> is accepted.
	closedEmpty string

	line, col int
}

func (p *parser) pos() Position {
	return Position{File: p.cfg.file, Line: p.line, Col: p.col}
}

func (p *parser) advance(raw []byte) {
	for _, c := range raw {
		if c == '\n' {
			p.line++
			p.col = 1
		} else {
			p.col++
		}
	}
}

func (p *parser) top() *Element { return p.stack[len(p.stack)-1] }

func (p *parser) run(src []byte) error {
	z := html.NewTokenizer(bytes.NewReader(src))
	for {
		tt := z.Next()
		pos := p.pos()
		p.advance(z.Raw())

		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return nil
			}
			return parseErrorf(pos, "tokenizer: %v", z.Err())

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			var attrs []Attr
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				attrs = append(attrs, Attr{Key: string(k), Val: string(v)})
			}
			if err := p.startTag(tag, attrs, pos); err != nil {
				return err
			}
			if tt == html.SelfClosingTagToken {
				if err := p.endTag(tag, pos); err != nil {
					return err
				}
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if err := p.endTag(string(name), pos); err != nil {
				return err
			}

		case html.TextToken:
			if err := p.text(string(z.Text()), pos); err != nil {
				return err
			}

		case html.DoctypeToken:
			p.cfg.logger.Debug("pagelem: ignoring doctype", "pos", pos.String())
		}
	}
}

func (p *parser) startTag(tag string, attrs []Attr, pos Position) error {
	if err := p.popEmpty(); err != nil {
		return err
	}

	if tag == "html" {
		if p.sawHTML || len(p.stack) > 1 || len(p.root.Children) > 0 {
			return parseErrorf(pos, "<html> must be the document element")
		}
		if len(attrs) > 0 {
			return parseErrorf(pos, "<html> cannot have attributes")
		}
		p.sawHTML = true
		p.root.Tag = "html"
		return nil
	}

	named := false
	for _, a := range attrs {
		if a.Key == "this" {
			named = true
		}
	}
	key, build, err := p.cfg.registry.Resolve(DispatchKeys(tag, named)...)
	if err != nil {
		return parseErrorf(pos, "<%s>: %v", tag, err)
	}
	if strings.HasPrefix(tag, "pe-") && (key == "any" || key == "named") {
		return parseErrorf(pos, "unknown tag <%s>", tag)
	}
	el, err := build(tag, attrs)
	if err != nil {
		return parseErrorf(pos, "<%s>: %v", tag, err)
	}
	el.Pos = pos
	if el.Controller != "" && p.cfg.controllers != nil && !p.cfg.controllers(el.Controller) {
		return parseErrorf(pos, "<%s>: unknown controller %q", tag, el.Controller)
	}
	if err := mayContain(p.top(), el); err != nil {
		return parseErrorf(pos, "%v", err)
	}
	p.stack = append(p.stack, el)
	return nil
}

func (p *parser) endTag(tag string, pos Position) error {
	if tag == "html" {
		if !p.sawHTML {
			return parseErrorf(pos, "invalid closing tag </html>")
		}
		return p.closeDownTo(1, false)
	}

	idx := -1
	for i := len(p.stack) - 1; i > 0; i-- {
		if p.stack[i].Tag == tag {
			idx = i
			break
		}
	}
	if idx < 0 {
		if tag != "" && tag == p.closedEmpty {
			p.closedEmpty = ""
			return nil
		}
		return parseErrorf(pos, "invalid closing tag </%s>", tag)
	}
	return p.closeDownTo(idx, false)
}

// closeDownTo pops and consumes stack entries until the stack has length
// n. Elements that still expected an end tag are reported when warn is set.
func (p *parser) closeDownTo(n int, warn bool) error {
	for len(p.stack) > n {
		el := p.top()
		p.stack = p.stack[:len(p.stack)-1]
		if warn && !el.Kind.isEmpty() {
			p.cfg.logger.Warn("pagelem: unclosed element at end of input",
				"element", el.String())
		}
		if err := p.consume(p.top(), el); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) popEmpty() error {
	if len(p.stack) > 1 && p.top().Kind.isEmpty() {
		p.closedEmpty = p.top().Tag
		return p.closeDownTo(len(p.stack)-1, false)
	}
	return nil
}

func (p *parser) text(data string, pos Position) error {
	sdata := strings.TrimSpace(data)
	if sdata == "" {
		return nil
	}
	if err := p.popEmpty(); err != nil {
		return err
	}

	parent := p.top()
	var el *Element
	switch {
	case parent.Kind == NodeRegex || parent.Kind == NodeScopedData:
		el = &Element{Kind: NodeText, Text: data}
	case strings.HasPrefix(sdata, "[") && strings.HasSuffix(sdata, "]"):
		inner := sdata[1 : len(sdata)-1]
		if strings.HasPrefix(inner, "[") && strings.HasSuffix(inner, "]") {
			el = &Element{Kind: NodeText, Text: inner, Exact: true}
			break
		}
		name := strings.TrimSpace(inner)
		if name == "" {
			name = "text"
		}
		if !wordRe.MatchString(name) {
			return parseErrorf(pos, "invalid text binding name %q", name)
		}
		el = &Element{Kind: NodeTextBinding, BindName: name, Strip: sdata != data}
	default:
		el = &Element{Kind: NodeText, Text: data, Exact: !spaceEdged(data)}
	}
	el.Pos = pos
	if err := mayContain(parent, el); err != nil {
		return parseErrorf(pos, "%v", err)
	}
	p.stack = append(p.stack, el)
	return nil
}

func spaceEdged(s string) bool {
	if s == "" {
		return false
	}
	isSpace := func(c byte) bool { return c == ' ' || c == '\n' || c == '\t' || c == '\r' }
	return isSpace(s[0]) || isSpace(s[len(s)-1])
}

// consume reduces child and attaches it to parent.
func (p *parser) consume(parent, child *Element) error {
	red, err := reduce(child)
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			return perr
		}
		return parseErrorf(child.Pos, "%s: %v", child, err)
	}
	if red == nil {
		return nil
	}
	if err := mayContain(parent, red); err != nil {
		return parseErrorf(red.Pos, "%v", err)
	}

	switch {
	case red.Kind == NodeTemplate:
		if _, dup := p.templates[red.ID]; dup {
			return parseErrorf(red.Pos, "template %q defined more than once", red.ID)
		}
		p.templates[red.ID] = red
		return nil
	case red.Kind == NodeLink:
		p.links = append(p.links, red)
		return nil
	case parent.Kind == NodeUseTemplate:
		if red.Slot == "" {
			return parseErrorf(red.Pos, "use-template cannot consume %s without slot=", red)
		}
		if _, dup := parent.BySlot[red.Slot]; dup {
			return parseErrorf(red.Pos, "slot %q filled more than once", red.Slot)
		}
		parent.BySlot[red.Slot] = red
		return nil
	case parent.Kind == NodeScopedData && parent.Value != nil:
		return parseErrorf(red.Pos, "<pe-data> cannot have both value and inner data")
	}

	if red.Kind == NodeText && len(parent.Children) > 0 {
		if last := parent.Children[len(parent.Children)-1]; last.Kind == NodeText {
			last.Text += red.Text
			last.Exact = last.Exact && red.Exact
			return nil
		}
	}
	parent.Children = append(parent.Children, red)
	return nil
}

func (p *parser) finish() (*Template, error) {
	if err := p.closeDownTo(1, true); err != nil {
		return nil, err
	}
	root, err := reduce(p.root)
	if err != nil {
		return nil, err
	}

	t := &Template{
		Name:      p.cfg.file,
		Root:      root,
		Templates: p.templates,
		Links:     p.links,
	}
	compile(t.Root)
	for _, k := range sortedKeys(t.Templates) {
		compile(t.Templates[k])
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.index()
	return t, nil
}
