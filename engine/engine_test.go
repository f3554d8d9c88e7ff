package engine

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/remote/htmldoc"
	"github.com/hazyhaar/pagelem/scope"
)

const listTemplate = `<div class="list"><repeat this="[id]"><div id="[id]" data-state="[state]"><span this="label">[text]</span></div></repeat></div>`

const listPage = `<html><head><title>Shop</title></head><body>
<div class="list">
  <div id="a" data-state="on"><span>Alpha</span></div>
  <div id="b" data-state="off"><span>Beta</span></div>
  <div id="c" data-state="on"><span>Gamma</span></div>
</div>
</body></html>`

func setup(t *testing.T, tmplSrc, page string, sc *scope.Instance) (*htmldoc.Doc, *Component) {
	t.Helper()
	tmpl, err := pagelem.Parse([]byte(tmplSrc), pagelem.WithFile("test.html"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	doc := htmldoc.MustParse(page)
	p, err := New(doc).Page(context.Background(), tmpl, sc)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	return doc, p
}

func names(t *testing.T, c *Component) []string {
	t.Helper()
	var out []string
	for it, err := range c.Items(context.Background()) {
		if err != nil {
			t.Fatalf("items of %s: %v", c, err)
		}
		out = append(out, it.Name)
	}
	return out
}

func itemsErr(c *Component) error {
	for _, err := range c.Items(context.Background()) {
		if err != nil {
			return err
		}
	}
	return nil
}

func TestResolve_ListExample(t *testing.T) {
	ctx := context.Background()
	_, page := setup(t, listTemplate, listPage, nil)

	if got, want := names(t, page), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("names: got %v, want %v", got, want)
	}

	snap, err := Snapshot(ctx, page)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	for id, text := range map[string]string{"a": "Alpha", "b": "Beta", "c": "Gamma"} {
		item, _ := snap[id].(map[string]any)
		label, _ := item["label"].(map[string]any)
		if label["text"] != text {
			t.Errorf("%s.label.text: got %v, want %q", id, label["text"], text)
		}
	}

	b, err := page.Child(ctx, "b")
	if err != nil {
		t.Fatalf("child b: %v", err)
	}
	if got, _ := b.Get(ctx, "state"); got != "off" {
		t.Errorf("b.state: got %v, want off", got)
	}
	if b.Path() != "b" {
		t.Errorf("path: got %q", b.Path())
	}
	if _, err := page.Child(ctx, "z"); !errors.Is(err, pagelem.ErrNotFound) {
		t.Errorf("child z: got %v, want not found", err)
	}
}

func TestResolve_Function(t *testing.T) {
	tmpl, err := pagelem.Parse([]byte(listTemplate))
	if err != nil {
		t.Fatal(err)
	}
	doc := htmldoc.MustParse(listPage)
	var got []string
	for c, err := range New(doc).Resolve(context.Background(), tmpl, nil) {
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		got = append(got, c.Name)
	}
	if len(got) != 3 {
		t.Errorf("got %v", got)
	}
}

func TestItems_SingleUse(t *testing.T) {
	_, page := setup(t, listTemplate, listPage, nil)
	seq := page.Items(context.Background())
	for range seq {
	}
	for _, err := range seq {
		if !errors.Is(err, ErrRestarted) {
			t.Errorf("second range: got %v, want restarted", err)
		}
	}
	if got := names(t, page); len(got) != 3 {
		t.Errorf("fresh sequence: got %v", got)
	}
}

func TestRepeat_Bounds(t *testing.T) {
	ctx := context.Background()
	_, page := setup(t, `<div class="list"><repeat max="2" this="[id]"><div id="[id]"></div></repeat></div>`, listPage, nil)
	if got := names(t, page); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("max=2: got %v", got)
	}

	_, page = setup(t, `<div class="list"><repeat min="4" this="[id]"><div id="[id]"></div></repeat></div>`, listPage, nil)
	if err := itemsErr(page); !errors.Is(err, pagelem.ErrNotFound) {
		t.Errorf("min=4: got %v, want not found", err)
	}
	if c, err := page.Child(ctx, "c"); err != nil || c.Name != "c" {
		t.Errorf("min=4 lookup by name: got %v, %v", c, err)
	}

	_, page = setup(t, `<div class="list"><repeat min="4" pe-optional this="[id]"><div id="[id]"></div></repeat></div>`, listPage, nil)
	if got := names(t, page); len(got) != 3 {
		t.Errorf("optional min=4: got %v", got)
	}
}

func TestRepeat_DuplicateNames(t *testing.T) {
	_, page := setup(t, `<ul><repeat this="[k]"><li data-k="[k]"></li></repeat></ul>`,
		`<ul><li data-k="x"></li><li data-k="x"></li><li></li></ul>`, nil)
	if got, want := names(t, page), []string{"x", "x1", "2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRepeat_Container(t *testing.T) {
	ctx := context.Background()
	_, page := setup(t, `<div class="list"><repeat this="rows"><div this="%d"></div></repeat></div>`, listPage, nil)
	rows, err := page.Child(ctx, "rows")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if got, want := names(t, rows), []string{"0", "1", "2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("items: got %v, want %v", got, want)
	}
}

func TestChoice_Union(t *testing.T) {
	_, page := setup(t,
		`<ul><repeat><choice><li class="+a" this="[n]">[n]</li><li class="+b" this="[n]">[n]</li></choice></repeat></ul>`,
		`<ul><li class="a">x</li><li class="a b">y</li><li class="b">z</li><li class="c">w</li></ul>`, nil)
	if got, want := names(t, page), []string{"x", "y", "z"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestChoice_NotFound(t *testing.T) {
	_, page := setup(t, `<choice><a this="x"></a><b this="y"></b></choice>`, `<p>nothing</p>`, nil)
	err := itemsErr(page)
	var pe *pagelem.Error
	if !errors.As(err, &pe) || pe.Kind != pagelem.KindNotFound {
		t.Fatalf("got %v, want not found", err)
	}
	if !strings.Contains(pe.Locator, " or ") {
		t.Errorf("locator: got %q, want alternatives", pe.Locator)
	}
}

func TestChoice_Naming(t *testing.T) {
	const page = `<ul><li class="a">x</li><li class="a b">y</li><li class="b">z</li></ul>`
	tests := []struct {
		name, tmpl string
		want       []string
	}{
		{"patterns", `<ul><choice><li class="+a" this="a%d"></li><li class="+b" this="b%d"></li></choice></ul>`, []string{"a0", "a1", "b1"}},
		{"second first", `<ul><choice><li class="+b" this="b%d"></li><li class="+a" this="a%d"></li></choice></ul>`, []string{"b0", "b1", "a0"}},
		{"one miss", `<ul><choice><li class="+c" this="c%d"></li><li class="+b" this="b%d"></li></choice></ul>`, []string{"b0", "b1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, p := setup(t, tt.tmpl, page, nil)
			if got := names(t, p); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChoice_NotFoundCause(t *testing.T) {
	_, page := setup(t, `<choice><section this="a"></section><nav this="b" pe-optional></nav></choice>`, `<p>nothing</p>`, nil)
	err := itemsErr(page)
	var pe *pagelem.Error
	if !errors.As(err, &pe) || pe.Kind != pagelem.KindNotFound {
		t.Fatalf("got %v, want not found", err)
	}
	if pagelem.KindOf(pe.Err) != pagelem.KindNotFound {
		t.Fatalf("cause: got %v, want the section miss", pe.Err)
	}
	var cause *pagelem.Error
	errors.As(pe.Err, &cause)
	if !strings.Contains(cause.Locator, "section") {
		t.Errorf("cause locator: got %q, want section", cause.Locator)
	}

	_, page = setup(t, `<choice pe-optional><section this="a"></section><nav this="b"></nav></choice><p this="p"></p>`, `<p>nothing</p>`, nil)
	if got, want := names(t, page), []string{"p"}; !reflect.DeepEqual(got, want) {
		t.Errorf("optional choice: got %v, want %v", got, want)
	}
}

func TestOptional_Idempotent(t *testing.T) {
	tmpl := `<div class="box"><span class="opt" pe-optional this="o">[t]</span><span class="req" this="r">[t]</span></div>`
	_, page := setup(t, tmpl, `<div class="box"><span class="req">R</span></div>`, nil)
	first := names(t, page)
	second := names(t, page)
	if !reflect.DeepEqual(first, []string{"r"}) || !reflect.DeepEqual(first, second) {
		t.Errorf("got %v then %v, want [r] twice", first, second)
	}

	_, page = setup(t, tmpl, `<div class="box"><span class="opt">O</span></div>`, nil)
	if err := itemsErr(page); !errors.Is(err, pagelem.ErrNotFound) {
		t.Errorf("missing mandatory: got %v", err)
	}
}

func TestNot(t *testing.T) {
	_, page := setup(t, `<repeat><div class="row" this="%d"><span class="sold" pe-not></span></div></repeat>`,
		`<div class="row">1</div><div class="row"><span class="sold"></span></div><div class="row">3</div>`, nil)
	if got := names(t, page); len(got) != 2 {
		t.Errorf("rows without sold: got %v", got)
	}

	_, page = setup(t, `<div class="banner" pe-not></div><span this="s"></span>`,
		`<div class="banner"></div><span></span>`, nil)
	err := itemsErr(page)
	if !errors.Is(err, pagelem.ErrNotFound) || errors.Is(err, pagelem.ErrUnwanted) {
		t.Errorf("unwanted at the top: got %v, want not found", err)
	}
}

func TestGroup(t *testing.T) {
	ctx := context.Background()
	_, page := setup(t, `<dl this="dl"><group><dt>Name</dt><dd this="value">[v]</dd></group></dl>`,
		`<dl><dt>Name</dt><dd>Ann</dd></dl>`, nil)
	dl, err := page.Child(ctx, "dl")
	if err != nil {
		t.Fatalf("dl: %v", err)
	}
	v, err := dl.Child(ctx, "value")
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if got, _ := v.Get(ctx, "v"); got != "Ann" {
		t.Errorf("v: got %v", got)
	}
}

func TestTemplates_Slots(t *testing.T) {
	const tmpl = `<html><head><template id="row"><div class="row"><slot name="cell"><span this="dflt"></span></slot></div></template></head><body>%s</body></html>`
	const page = `<html><body><div class="row"><b>x</b><span>s</span><i><span>d</span></i></div></body></html>`
	tests := []struct {
		name, use string
		want      []string
	}{
		{"substituted", `<use-template id="row"><b slot="cell" this="bold"></b></use-template>`, []string{"bold"}},
		{"default", `<use-template id="row"></use-template>`, []string{"dflt"}},
		{"slot content", `<use-template id="row"><i slot="cell"><pe-slotcontent></pe-slotcontent></i></use-template>`, []string{"dflt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, p := setup(t, strings.Replace(tmpl, "%s", tt.use, 1), page, nil)
			if got := names(t, p); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchByID(t *testing.T) {
	ctx := context.Background()
	_, page := setup(t,
		`<span class="ref" this="ref" data-v="[v]"></span><div class="wrap"><pe-data name="target" value="main" pe-scope></pe-data><pe-matchid id="target" this="box"><span this="label">[t]</span></pe-matchid><pe-matchid id="root.ref.v + '-x'" this="dyn"></pe-matchid></div>`,
		`<span class="ref" data-v="k"></span><div class="wrap"></div><section id="main"><span>In box</span></section><p id="k-x"></p>`, nil)

	box, err := page.Child(ctx, "box")
	if err != nil {
		t.Fatalf("box: %v", err)
	}
	label, err := box.Child(ctx, "label")
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	if got, _ := label.Get(ctx, "t"); got != "In box" {
		t.Errorf("label: got %v", got)
	}
	if _, err := page.Child(ctx, "dyn"); err != nil {
		t.Errorf("dyn: %v", err)
	}
	if v, _ := page.Get(ctx, "target"); v != "main" {
		t.Errorf("page constant: got %v", v)
	}
}

func TestMatchByID_Failing(t *testing.T) {
	const page = `<span class="s"></span>`
	_, p := setup(t, `<pe-matchid id="root.header.user_id" this="user" pe-optional></pe-matchid><span class="s" this="s"></span>`, page, nil)
	if got, want := names(t, p), []string{"s"}; !reflect.DeepEqual(got, want) {
		t.Errorf("optional: got %v, want %v", got, want)
	}

	_, p = setup(t, `<pe-matchid id="root.header.user_id" this="user"></pe-matchid>`, page, nil)
	err := itemsErr(p)
	var pe *pagelem.Error
	if !errors.As(err, &pe) || pe.Kind != pagelem.KindNotFound {
		t.Fatalf("mandatory: got %v, want not found", err)
	}
	if pe.Err == nil {
		t.Error("mandatory: expression error not kept as cause")
	}

	_, p = setup(t, `<pe-matchid id="'nope'" this="user" pe-optional></pe-matchid><span class="s" this="s"></span>`, page, nil)
	if got, want := names(t, p), []string{"s"}; !reflect.DeepEqual(got, want) {
		t.Errorf("optional missing node: got %v, want %v", got, want)
	}
}

func TestResolve_Reach(t *testing.T) {
	tests := []struct {
		name, tmpl, page string
		want             []string
	}{
		{"deep", `<div class="list"><pe-deep><span this="s">[t]</span></pe-deep></div>`,
			`<div class="list"><p><span>Deep</span></p></div>`, []string{"s"}},
		{"deep repeat", `<div class="list"><pe-deep><repeat><span this="s%d"></span></repeat></pe-deep></div>`,
			`<div class="list"><span></span><p><span></span></p></div>`, []string{"s0", "s1"}},
		{"root reset", `<div class="list"><pe-root><p this="out">[t]</p></pe-root></div>`,
			`<div class="list"></div><p>Out</p>`, []string{"out"}},
		{"root reset repeat", `<div class="list"><pe-root><repeat><p this="p%d"></p></repeat></pe-root></div>`,
			`<p></p><div class="list"><p></p></div>`, []string{"p0", "p1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, p := setup(t, tt.tmpl, tt.page, nil)
			if got := names(t, p); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	_, p := setup(t, `<div class="list"><span this="s">[t]</span></div>`, `<div class="list"><p><span>Deep</span></p></div>`, nil)
	if err := itemsErr(p); !errors.Is(err, pagelem.ErrNotFound) {
		t.Errorf("without pe-deep: got %v, want not found", err)
	}
}

func TestResolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	class, _ := scope.NewRegistry().Get(scope.ClassPage)
	for _, rs := range []bool{false, true} {
		sc := scope.New(class, nil)
		sc.SetRecoverStale(rs)
		_, page := setup(t, listTemplate, listPage, sc)

		var err error
		for _, e := range page.Items(ctx) {
			if e != nil {
				err = e
				break
			}
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("items, recover=%v: got %v, want %v", rs, err, context.Canceled)
		}
		if _, err := page.Child(ctx, "b"); !errors.Is(err, context.Canceled) {
			t.Errorf("child, recover=%v: got %v, want %v", rs, err, context.Canceled)
		}
	}
}

func TestGroup_Controller(t *testing.T) {
	ctx := context.Background()
	reg := scope.NewRegistry()
	if _, err := reg.Define(scope.ClassDef{
		Name:      "pair",
		Component: []scope.Descriptor{{Kind: scope.DescConstant, Name: "kind", Value: "pair"}},
	}); err != nil {
		t.Fatal(err)
	}
	tmpl, err := pagelem.Parse([]byte(`<dl this="dl"><group pe-ctrl="pair"><dt>Name</dt><dd this="value">[v]</dd></group></dl>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	page, err := New(htmldoc.MustParse(`<dl><dt>Name</dt><dd>Ann</dd></dl>`), WithClasses(reg)).Page(ctx, tmpl, nil)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	dl, err := page.Child(ctx, "dl")
	if err != nil {
		t.Fatalf("dl: %v", err)
	}
	v, err := dl.Child(ctx, "value")
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if got, _ := v.Get(ctx, "kind"); got != "pair" {
		t.Errorf("kind: got %v, want pair", got)
	}
	if got, _ := v.Get(ctx, "v"); got != "Ann" {
		t.Errorf("v: got %v, want Ann", got)
	}

	_, page = setup(t, `<dl this="dl"><group pe-controller="nope"><dd this="value"></dd></group></dl>`, `<dl><dd></dd></dl>`, nil)
	dl, err = page.Child(ctx, "dl")
	if err != nil {
		t.Fatalf("dl: %v", err)
	}
	if err := itemsErr(dl); err == nil || !strings.Contains(err.Error(), "unknown controller") {
		t.Errorf("unknown controller: got %v", err)
	}
}

func TestInputs(t *testing.T) {
	ctx := context.Background()
	doc, page := setup(t, `<form this="f"><input name="q" pe-input="type"><input name="*" id="other"></form>`,
		`<form><input name="q" value="1"><input id="other" name="extra" value="2"></form>`, nil)
	f, err := page.Child(ctx, "f")
	if err != nil {
		t.Fatalf("f: %v", err)
	}
	if got, _ := f.Get(ctx, "extra"); got != "2" {
		t.Errorf("extra: got %v", got)
	}
	if err := f.Set(ctx, "q", "hello"); err != nil {
		t.Fatalf("set q: %v", err)
	}
	if got, _ := f.Get(ctx, "q"); got != "hello" {
		t.Errorf("q: got %v", got)
	}
	if ev := doc.Events(); len(ev) != 2 || ev[0].Op != "clear" || ev[1].Op != "keys" {
		t.Errorf("events: got %+v", ev)
	}
	if err := f.Invoke(ctx, "submit", nil); err != nil {
		t.Errorf("submit: %v", err)
	}
	if err := f.Invoke(ctx, "q", nil); err == nil {
		t.Error("invoke of a value: expected error")
	}
}

func TestPage_ClassDescriptors(t *testing.T) {
	ctx := context.Background()
	_, page := setup(t, listTemplate, listPage, nil)
	if got, err := page.Get(ctx, "title"); err != nil || got != "Shop" {
		t.Errorf("title: got %v, %v", got, err)
	}
	if _, err := page.Get(ctx, "nope"); !errors.Is(err, ErrNoDescriptor) {
		t.Errorf("nope: got %v", err)
	}
}

func TestController_Unknown(t *testing.T) {
	_, page := setup(t, `<div class="list" pe-controller="nope"><div this="x"></div></div>`, listPage, nil)
	if err := itemsErr(page); err == nil || !strings.Contains(err.Error(), "unknown controller") {
		t.Errorf("got %v", err)
	}
}

func TestStaleRecovery(t *testing.T) {
	ctx := context.Background()
	class, _ := scope.NewRegistry().Get(scope.ClassPage)
	sc := scope.New(class, nil)
	sc.SetRecoverStale(true)
	doc, page := setup(t, listTemplate, listPage, sc)

	b, err := page.Child(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.Reload(strings.NewReader(strings.Replace(listPage, "Beta", "Beta 2", 1))); err != nil {
		t.Fatal(err)
	}
	if got, err := b.Get(ctx, "state"); err != nil || got != "off" {
		t.Fatalf("state after reload: got %v, %v", got, err)
	}
	label, err := b.Child(ctx, "label")
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	if got, _ := label.Get(ctx, "text"); got != "Beta 2" {
		t.Errorf("label after reload: got %v", got)
	}

	sc.SetRecoverStale(false)
	if err := doc.Reload(strings.NewReader(listPage)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Get(ctx, "state"); pagelem.KindOf(err) != pagelem.KindStale {
		t.Errorf("without recovery: got %v, want stale", err)
	}
}

type clausePredicate struct {
	clause string
	state  string
}

func (p clausePredicate) Translate(ctx context.Context, c *Component) (string, error) {
	if p.clause == "" {
		return "", ErrUnsupportedPredicate
	}
	return p.clause, nil
}

func (p clausePredicate) Eval(ctx context.Context, it *Component) (bool, error) {
	v, err := it.Get(ctx, "state")
	return v == p.state, err
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	_, page := setup(t, listTemplate, listPage, nil)
	for _, p := range []clausePredicate{
		{clause: "[@data-state='on']", state: "on"},
		{state: "on"},
	} {
		var got []string
		for c, err := range page.Filter(ctx, p) {
			if err != nil {
				t.Fatalf("filter %q: %v", p.clause, err)
			}
			got = append(got, c.Name)
		}
		if !reflect.DeepEqual(got, []string{"a", "c"}) {
			t.Errorf("filter %q: got %v, want [a c]", p.clause, got)
		}
	}
}
