package htmldoc

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/hazyhaar/pagelem/remote"
)

// Remove detaches the node of h. h and every handle below it become stale.
func (d *Doc) Remove(h remote.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(h)
	if err != nil {
		return err
	}
	if n.Parent == nil || n == d.root {
		return fmt.Errorf("htmldoc: cannot remove the document")
	}
	n.Parent.RemoveChild(n)
	return nil
}

// Reload replaces the whole document, as a page re-render would. Every
// handle obtained before becomes stale; keys are not reused.
func (d *Doc) Reload(r io.Reader) error {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return fmt.Errorf("htmldoc: reload: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root = root
	d.keys = make(map[*html.Node]string)
	d.props = make(map[*html.Node]map[string]string)
	return nil
}

// SetAttr sets an attribute on the node of h, adding it if absent.
func (d *Doc) SetAttr(h remote.Handle, name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(h)
	if err != nil {
		return err
	}
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr[i].Val = value
			return nil
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
	return nil
}

// Events returns the write operations performed so far.
func (d *Doc) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

func (d *Doc) record(ctx context.Context, op string, h remote.Handle, value string) (*html.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := d.node(h)
	if err != nil {
		return nil, err
	}
	d.events = append(d.events, Event{Op: op, Key: h.Key(), Value: value})
	d.logger.Debug("htmldoc: write", "op", op, "node", h.Key(), "value", value)
	return n, nil
}

func (d *Doc) setProp(n *html.Node, name, value string) {
	m := d.props[n]
	if m == nil {
		m = make(map[string]string)
		d.props[n] = m
	}
	m[name] = value
}

// SetProperty implements remote.Writer.
func (d *Doc) SetProperty(ctx context.Context, h remote.Handle, name string, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := fmt.Sprint(value)
	n, err := d.record(ctx, "set:"+name, h, v)
	if err != nil {
		return err
	}
	d.setProp(n, name, v)
	return nil
}

// Clear implements remote.Writer.
func (d *Doc) Clear(ctx context.Context, h remote.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.record(ctx, "clear", h, "")
	if err != nil {
		return err
	}
	d.setProp(n, "value", "")
	return nil
}

// SendKeys implements remote.Writer. Printable keys are appended to the
// value; End moves nowhere and Enter is recorded as a submit.
func (d *Doc) SendKeys(ctx context.Context, h remote.Handle, keys string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.record(ctx, "keys", h, keys)
	if err != nil {
		return err
	}
	cur, ok := d.props[n]["value"]
	if !ok {
		cur = htmlquery.SelectAttr(n, "value")
	}
	var b strings.Builder
	b.WriteString(cur)
	for _, r := range keys {
		switch string(r) {
		case remote.KeyEnd:
		case remote.KeyEnter:
			d.events = append(d.events, Event{Op: "submit", Key: h.Key()})
		default:
			b.WriteRune(r)
		}
	}
	d.setProp(n, "value", b.String())
	return nil
}

// Click implements remote.Writer.
func (d *Doc) Click(ctx context.Context, h remote.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.record(ctx, "click", h, "")
	return err
}

// Submit implements remote.Writer.
func (d *Doc) Submit(ctx context.Context, h remote.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.record(ctx, "submit", h, "")
	return err
}

// Eval implements remote.Evaluator. The script runs in a bare JavaScript
// VM whose document only exposes readyState and title, which is enough
// for readiness conditions.
func (d *Doc) Eval(ctx context.Context, script string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	title := ""
	if t := htmlquery.FindOne(d.root, "//title"); t != nil {
		title = strings.TrimSpace(visibleText(t))
	}
	d.mu.Unlock()

	vm := goja.New()
	document := map[string]any{"readyState": "complete", "title": title}
	if err := vm.Set("document", document); err != nil {
		return nil, fmt.Errorf("htmldoc: eval: %w", err)
	}
	if err := vm.Set("window", map[string]any{"document": document}); err != nil {
		return nil, fmt.Errorf("htmldoc: eval: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()
	v, err := vm.RunString("(function(){" + script + "\n})()")
	if err != nil {
		return nil, fmt.Errorf("htmldoc: eval: %w", err)
	}
	return v.Export(), nil
}
