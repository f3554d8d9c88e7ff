package rodremote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/pagelem/idgen"
	"github.com/hazyhaar/pagelem/remote"
)

// Backend is a remote.Backend over one browser page. It also implements
// remote.Writer, remote.Evaluator and remote.PartialTexter.
type Backend struct {
	page   *rod.Page
	keys   idgen.Generator
	logger *slog.Logger
}

var (
	_ remote.Backend       = (*Backend)(nil)
	_ remote.Writer        = (*Backend)(nil)
	_ remote.Evaluator     = (*Backend)(nil)
	_ remote.PartialTexter = (*Backend)(nil)
)

// NewBackend wraps a page opened by other means than Manager.Open.
func NewBackend(page *rod.Page, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return newBackend(page, idgen.Prefixed("el_", idgen.UUIDv7()), logger)
}

func newBackend(page *rod.Page, keys idgen.Generator, logger *slog.Logger) *Backend {
	return &Backend{page: page, keys: keys, logger: logger}
}

// Page returns the underlying rod page.
func (b *Backend) Page() *rod.Page { return b.page }

// Close closes the page.
func (b *Backend) Close() error { return b.page.Close() }

const docKey = "#document"

type docHandle struct{}

func (docHandle) Key() string { return docKey }

// elemHandle keys an element by a token stored on the DOM node itself, so
// two lookups of the same node compare equal.
type elemHandle struct {
	el  *rod.Element
	key string
}

func (h *elemHandle) Key() string    { return h.key }
func (h *elemHandle) String() string { return h.key }

func (b *Backend) wrap(ctx context.Context, els rod.Elements) ([]remote.Handle, error) {
	out := make([]remote.Handle, 0, len(els))
	for _, el := range els {
		res, err := el.Context(ctx).Eval(`(k) => this.__pagelemKey || (this.__pagelemKey = k)`, b.keys())
		if err != nil {
			return nil, b.fail("key", err)
		}
		out = append(out, &elemHandle{el: el, key: res.Value.Str()})
	}
	return out, nil
}

func (b *Backend) elem(h remote.Handle) (*elemHandle, error) {
	eh, ok := h.(*elemHandle)
	if !ok {
		return nil, fmt.Errorf("rodremote: not an element handle: %T", h)
	}
	return eh, nil
}

// fail wraps err, marking lost remote objects as stale.
func (b *Backend) fail(op string, err error) error {
	if errors.Is(err, cdp.ErrObjNotFound) || errors.Is(err, cdp.ErrCtxNotFound) || errors.Is(err, cdp.ErrCtxDestroyed) {
		return fmt.Errorf("rodremote: %s: %w: %v", op, remote.ErrStale, err)
	}
	return fmt.Errorf("rodremote: %s: %w", op, err)
}

// Document implements remote.Backend.
func (b *Backend) Document(context.Context) (remote.Handle, error) { return docHandle{}, nil }

// FindByPath implements remote.Backend.
func (b *Backend) FindByPath(ctx context.Context, root remote.Handle, path string) ([]remote.Handle, error) {
	var (
		els rod.Elements
		err error
	)
	if _, ok := root.(docHandle); ok {
		els, err = b.page.Context(ctx).ElementsX(path)
	} else {
		eh, herr := b.elem(root)
		if herr != nil {
			return nil, herr
		}
		els, err = eh.el.Context(ctx).ElementsX(path)
	}
	if err != nil {
		return nil, b.fail(fmt.Sprintf("query %q", path), err)
	}
	return b.wrap(ctx, els)
}

// Text implements remote.Backend.
func (b *Backend) Text(ctx context.Context, h remote.Handle) (string, error) {
	eh, err := b.elem(h)
	if err != nil {
		return "", err
	}
	s, err := eh.el.Context(ctx).Text()
	if err != nil {
		return "", b.fail("text", err)
	}
	return strings.TrimSpace(s), nil
}

// Attribute implements remote.Backend. "value" reads the live property
// rather than the markup attribute.
func (b *Backend) Attribute(ctx context.Context, h remote.Handle, name string) (string, bool, error) {
	eh, err := b.elem(h)
	if err != nil {
		return "", false, err
	}
	el := eh.el.Context(ctx)
	switch name {
	case "value", "innerText", "textContent":
		v, err := el.Property(name)
		if err != nil {
			return "", false, b.fail("property "+name, err)
		}
		if v.Nil() {
			return "", false, nil
		}
		return v.Str(), true, nil
	}
	v, err := el.Attribute(name)
	if err != nil {
		return "", false, b.fail("attribute "+name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// IsStale implements remote.Backend.
func (b *Backend) IsStale(ctx context.Context, h remote.Handle) (bool, error) {
	if _, ok := h.(docHandle); ok {
		return false, nil
	}
	eh, err := b.elem(h)
	if err != nil {
		return false, err
	}
	res, err := eh.el.Context(ctx).Eval(`() => this.isConnected`)
	if err != nil {
		if errors.Is(b.fail("stale", err), remote.ErrStale) {
			return true, nil
		}
		return false, b.fail("stale", err)
	}
	return !res.Value.Bool(), nil
}

// FindByID implements remote.Backend.
func (b *Backend) FindByID(ctx context.Context, _ remote.Handle, id string) (remote.Handle, error) {
	els, err := b.page.Context(ctx).ElementsByJS(rod.Eval(`(id) => { const e = document.getElementById(id); return e ? [e] : [] }`, id))
	if err != nil {
		return nil, b.fail("find id "+id, err)
	}
	hs, err := b.wrap(ctx, els)
	if err != nil || len(hs) == 0 {
		return nil, err
	}
	return hs[0], nil
}

const partialTextJS = `(after, before) => {
	const matches = (m, n) => m !== "" && (m === "*" || n.tagName === m);
	let out = "", on = after === "";
	for (const c of this.childNodes) {
		if (c.nodeType === Node.ELEMENT_NODE) {
			if (!on) { on = matches(after, c); continue; }
			if (matches(before, c)) break;
			out += c.innerText || c.textContent || "";
		} else if (on && c.nodeType === Node.TEXT_NODE) {
			out += c.data;
		}
	}
	return out;
}`

// PartialText implements remote.PartialTexter.
func (b *Backend) PartialText(ctx context.Context, h remote.Handle, after, before string) (string, error) {
	eh, err := b.elem(h)
	if err != nil {
		return "", err
	}
	res, err := eh.el.Context(ctx).Eval(partialTextJS, strings.ToUpper(after), strings.ToUpper(before))
	if err != nil {
		return "", b.fail("partial text", err)
	}
	return res.Value.Str(), nil
}

// SetProperty implements remote.Writer.
func (b *Backend) SetProperty(ctx context.Context, h remote.Handle, name string, value any) error {
	eh, err := b.elem(h)
	if err != nil {
		return err
	}
	_, err = eh.el.Context(ctx).Eval(`(n, v) => { this[n] = v; this.dispatchEvent(new Event("input", {bubbles: true})) }`, name, value)
	if err != nil {
		return b.fail("set "+name, err)
	}
	b.logger.Debug("rodremote: set property", "key", eh.key, "name", name)
	return nil
}

// Clear implements remote.Writer.
func (b *Backend) Clear(ctx context.Context, h remote.Handle) error {
	eh, err := b.elem(h)
	if err != nil {
		return err
	}
	el := eh.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return b.fail("clear", err)
	}
	if err := el.Input(""); err != nil {
		return b.fail("clear", err)
	}
	return nil
}

// SendKeys implements remote.Writer. Printable runs are inserted as text;
// remote.KeyEnd and remote.KeyEnter are pressed as keys.
func (b *Backend) SendKeys(ctx context.Context, h remote.Handle, keys string) error {
	eh, err := b.elem(h)
	if err != nil {
		return err
	}
	el := eh.el.Context(ctx)
	if err := el.Focus(); err != nil {
		return b.fail("focus", err)
	}
	for _, tok := range splitKeys(keys) {
		if tok.key != 0 {
			err = b.page.Context(ctx).Keyboard.Type(tok.key)
		} else {
			err = el.Input(tok.text)
		}
		if err != nil {
			return b.fail("keys", err)
		}
	}
	return nil
}

type keyToken struct {
	text string
	key  input.Key
}

func splitKeys(keys string) []keyToken {
	var (
		out []keyToken
		run strings.Builder
	)
	flush := func() {
		if run.Len() > 0 {
			out = append(out, keyToken{text: run.String()})
			run.Reset()
		}
	}
	for _, r := range keys {
		switch string(r) {
		case remote.KeyEnd:
			flush()
			out = append(out, keyToken{key: input.End})
		case remote.KeyEnter:
			flush()
			out = append(out, keyToken{key: input.Enter})
		default:
			run.WriteRune(r)
		}
	}
	flush()
	return out
}

// Click implements remote.Writer.
func (b *Backend) Click(ctx context.Context, h remote.Handle) error {
	eh, err := b.elem(h)
	if err != nil {
		return err
	}
	if err := eh.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return b.fail("click", err)
	}
	return nil
}

// Submit implements remote.Writer. The element's form is submitted, or the
// element itself when it is a form.
func (b *Backend) Submit(ctx context.Context, h remote.Handle) error {
	eh, err := b.elem(h)
	if err != nil {
		return err
	}
	_, err = eh.el.Context(ctx).Eval(`() => {
		const f = this.form || this.closest("form");
		if (!f) throw new Error("no form");
		f.requestSubmit ? f.requestSubmit() : f.submit();
	}`)
	if err != nil {
		return b.fail("submit", err)
	}
	return nil
}

// Eval implements remote.Evaluator. Promises are awaited.
func (b *Backend) Eval(ctx context.Context, script string) (any, error) {
	res, err := b.page.Context(ctx).Eval("() => {" + script + "\n}")
	if err != nil {
		return nil, b.fail("eval", err)
	}
	return res.Value.Val(), nil
}
