// Package htmldoc is an in-memory remote.Backend over a parsed HTML
// document. Path expressions are evaluated with antchfx/htmlquery.
//
// It serves as the fixture tree of the engine tests and as the offline
// backend of the pagelem CLI. Nodes can be detached or the whole document
// replaced, after which the handles obtained before become stale.
package htmldoc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/pagelem/remote"
)

// Event records one write operation performed through the Writer methods.
type Event struct {
	Op    string
	Key   string
	Value string
}

// Doc is a static DOM. It is safe for concurrent use.
type Doc struct {
	mu     sync.Mutex
	root   *html.Node
	keys   map[*html.Node]string
	next   int
	props  map[*html.Node]map[string]string
	events []Event
	logger *slog.Logger
}

type handle struct {
	n   *html.Node
	key string
}

func (h *handle) Key() string    { return h.key }
func (h *handle) String() string { return h.key }

// Option configures a Doc.
type Option func(*Doc)

// WithLogger sets the logger used for write events.
func WithLogger(l *slog.Logger) Option { return func(d *Doc) { d.logger = l } }

// Parse reads an HTML document.
func Parse(r io.Reader, opts ...Option) (*Doc, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	d := &Doc{
		root:   root,
		keys:   make(map[*html.Node]string),
		props:  make(map[*html.Node]map[string]string),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(src string, opts ...Option) (*Doc, error) {
	return Parse(strings.NewReader(src), opts...)
}

// MustParse parses src and panics on error. For fixtures.
func MustParse(src string) *Doc {
	d, err := ParseString(src)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Doc) wrap(n *html.Node) *handle {
	k, ok := d.keys[n]
	if !ok {
		d.next++
		k = "n" + strconv.Itoa(d.next)
		d.keys[n] = k
	}
	return &handle{n: n, key: k}
}

// node unwraps h and fails with remote.ErrStale if it was detached.
func (d *Doc) node(h remote.Handle) (*html.Node, error) {
	hh, ok := h.(*handle)
	if !ok {
		return nil, fmt.Errorf("htmldoc: foreign handle %T", h)
	}
	if !d.attached(hh.n) {
		return nil, fmt.Errorf("htmldoc: %s: %w", hh.key, remote.ErrStale)
	}
	return hh.n, nil
}

func (d *Doc) attached(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == d.root {
			return true
		}
	}
	return false
}

// Document implements remote.Backend.
func (d *Doc) Document(ctx context.Context) (remote.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrap(d.root), nil
}

// FindByPath implements remote.Backend. Only element nodes are returned.
func (d *Doc) FindByPath(ctx context.Context, root remote.Handle, path string) ([]remote.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(root)
	if err != nil {
		return nil, err
	}
	nodes, err := htmlquery.QueryAll(n, path)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: query %q: %w", path, err)
	}
	var out []remote.Handle
	for _, m := range nodes {
		if m.Type == html.ElementNode {
			out = append(out, d.wrap(m))
		}
	}
	return out, nil
}

// Text implements remote.Backend.
func (d *Doc) Text(ctx context.Context, h remote.Handle) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(h)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(visibleText(n)), nil
}

// Attribute implements remote.Backend. "value" reflects properties set by
// the Writer methods and the content of textarea and select elements.
func (d *Doc) Attribute(ctx context.Context, h remote.Handle, name string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(h)
	if err != nil {
		return "", false, err
	}
	if v, ok := d.props[n][name]; ok {
		return v, true, nil
	}
	if name == "value" {
		switch n.Data {
		case "textarea":
			return visibleText(n), true, nil
		case "select":
			return selectedValue(n)
		}
	}
	if name == "innerText" || name == "textContent" {
		return strings.TrimSpace(visibleText(n)), true, nil
	}
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

func selectedValue(sel *html.Node) (string, bool, error) {
	opts, err := htmlquery.QueryAll(sel, ".//option")
	if err != nil || len(opts) == 0 {
		return "", false, err
	}
	pick := opts[0]
	for _, o := range opts {
		if htmlquery.ExistsAttr(o, "selected") {
			pick = o
			break
		}
	}
	if htmlquery.ExistsAttr(pick, "value") {
		return htmlquery.SelectAttr(pick, "value"), true, nil
	}
	return strings.TrimSpace(visibleText(pick)), true, nil
}

// IsStale implements remote.Backend.
func (d *Doc) IsStale(ctx context.Context, h remote.Handle) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	hh, ok := h.(*handle)
	if !ok {
		return false, fmt.Errorf("htmldoc: foreign handle %T", h)
	}
	return !d.attached(hh.n), nil
}

// FindByID implements remote.Backend.
func (d *Doc) FindByID(ctx context.Context, doc remote.Handle, id string) (remote.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.node(doc); err != nil {
		return nil, err
	}
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for ; n != nil && found == nil; n = n.NextSibling {
			if n.Type == html.ElementNode && htmlquery.SelectAttr(n, "id") == id && htmlquery.ExistsAttr(n, "id") {
				found = n
				return
			}
			walk(n.FirstChild)
		}
	}
	walk(d.root.FirstChild)
	if found == nil {
		return nil, nil
	}
	return d.wrap(found), nil
}

// PartialText implements remote.PartialTexter.
func (d *Doc) PartialText(ctx context.Context, h remote.Handle, after, before string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(h)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	collecting := after == ""
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			if !collecting {
				collecting = markerMatches(after, c)
				continue
			}
			if markerMatches(before, c) {
				break
			}
			b.WriteString(visibleText(c))
			continue
		}
		if collecting && c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String(), nil
}

func markerMatches(marker string, n *html.Node) bool {
	switch marker {
	case "":
		return false
	case "*":
		return true
	}
	return strings.EqualFold(marker, n.Data)
}

// visibleText concatenates the text nodes below n, skipping scripts and
// styles.
func visibleText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
