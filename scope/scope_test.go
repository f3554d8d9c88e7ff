package scope

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/remote"
	"github.com/hazyhaar/pagelem/remote/htmldoc"
)

const page = `<html><head><title>Orders</title></head><body>
<div id="o1" class="order paid" data-state="open">
  <span class="ref">REF-42 (EUR 17)</span>
  <input name="qty" value="3">
  <button>Pay</button>
</div>
</body></html>`

func target(t *testing.T, path string) (*htmldoc.Doc, Target) {
	t.Helper()
	doc := htmldoc.MustParse(page)
	ctx := context.Background()
	root, _ := doc.Document(ctx)
	hs, err := doc.FindByPath(ctx, root, path)
	if err != nil || len(hs) != 1 {
		t.Fatalf("find %s: %v (%d)", path, err, len(hs))
	}
	return doc, Target{Backend: doc, Handle: hs[0]}
}

func TestDescriptor_Get(t *testing.T) {
	_, tg := target(t, "//div[@id='o1']")
	re := regexp.MustCompile(`^(?:REF-(?P<num>\d+))`)
	tests := []struct {
		name string
		d    Descriptor
		want any
	}{
		{"attr", Descriptor{Kind: DescAttr, Attr: "data-state"}, "open"},
		{"attr optional missing", Descriptor{Kind: DescAttr, Attr: "title", Optional: true}, nil},
		{"equals", Descriptor{Kind: DescAttrEquals, Attr: "data-state", Token: "open"}, true},
		{"equals miss", Descriptor{Kind: DescAttrEquals, Attr: "data-state", Token: "closed"}, false},
		{"contains", Descriptor{Kind: DescAttrContains, Attr: "class", Token: "paid"}, true},
		{"contains missing attr", Descriptor{Kind: DescAttrContains, Attr: "nope", Token: "paid"}, false},
		{"choice", Descriptor{Kind: DescAttrChoice, Attr: "class", Tokens: []string{"late", "paid", "order"}}, "paid"},
		{"choice none", Descriptor{Kind: DescAttrChoice, Attr: "class", Tokens: []string{"late"}}, nil},
		{"text path", Descriptor{Kind: DescText, Path: "span", Strip: true}, "REF-42 (EUR 17)"},
		{"regex group", Descriptor{Kind: DescRegex, Path: "span", Regex: re, Group: "num"}, "42"},
		{"regex whole", Descriptor{Kind: DescRegex, Path: "span", Regex: re}, "REF-42"},
		{"input", Descriptor{Kind: DescInput, Path: "input", Attr: "value"}, "3"},
		{"constant", Descriptor{Kind: DescConstant, Value: 7}, 7},
		{"optional path", Descriptor{Kind: DescText, Path: "table", Optional: true}, nil},
		{"script", Descriptor{Kind: DescScript, Script: "return document.title;"}, "Orders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.d.Name = tt.name
			got, err := tt.d.Get(context.Background(), tg)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDescriptor_NotFound(t *testing.T) {
	_, tg := target(t, "//div[@id='o1']")
	tests := []Descriptor{
		{Kind: DescAttr, Name: "t", Attr: "title"},
		{Kind: DescText, Name: "tbl", Path: "table"},
		{Kind: DescRegex, Name: "r", Path: "span", Regex: regexp.MustCompile(`^(?:XYZ)`)},
	}
	for _, d := range tests {
		_, err := d.Get(context.Background(), tg)
		if !errors.Is(err, pagelem.ErrNotFound) {
			t.Errorf("%s: got %v, want not found", d.Name, err)
		}
	}
}

func TestDescriptor_Stale(t *testing.T) {
	doc, tg := target(t, "//div[@id='o1']")
	if err := doc.Remove(tg.Handle); err != nil {
		t.Fatal(err)
	}
	d := Descriptor{Kind: DescAttr, Name: "state", Attr: "data-state"}
	_, err := d.Get(context.Background(), tg)
	if pagelem.KindOf(err) != pagelem.KindStale {
		t.Errorf("got %v, want stale", err)
	}
}

func TestDescriptor_SetInput(t *testing.T) {
	tests := []struct {
		mode pagelem.InputMode
		ops  []string
	}{
		{pagelem.InputNative, []string{"set:value"}},
		{pagelem.InputType, []string{"clear", "keys"}},
		{pagelem.InputCombi, []string{"set:value", "keys"}},
	}
	for _, tt := range tests {
		doc, tg := target(t, "//div[@id='o1']")
		d := Descriptor{Kind: DescInput, Name: "qty", Path: "input", Attr: "value", Input: tt.mode}
		if err := d.Set(context.Background(), tg, 12); err != nil {
			t.Fatalf("mode %d: set: %v", tt.mode, err)
		}
		got, _ := d.Get(context.Background(), tg)
		if got != "12" {
			t.Errorf("mode %d: value %#v, want 12", tt.mode, got)
		}
		var ops []string
		for _, e := range doc.Events() {
			ops = append(ops, e.Op)
		}
		if len(ops) != len(tt.ops) {
			t.Fatalf("mode %d: ops %v, want %v", tt.mode, ops, tt.ops)
		}
		for i := range ops {
			if ops[i] != tt.ops[i] {
				t.Errorf("mode %d: op %d = %s, want %s", tt.mode, i, ops[i], tt.ops[i])
			}
		}
	}
}

func TestDescriptor_SetAction(t *testing.T) {
	doc, tg := target(t, "//div[@id='o1']")
	text := Descriptor{Kind: DescText, Name: "pay", Path: "button"}
	if err := text.Set(context.Background(), tg, "x"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("set text: got %v, want read-only", err)
	}
	if err := text.Set(context.Background(), tg, Click); err != nil {
		t.Fatalf("click: %v", err)
	}
	ev := doc.Events()
	if len(ev) != 1 || ev[0].Op != "click" {
		t.Errorf("events: got %+v", ev)
	}
	send := Descriptor{Kind: DescAction, Name: "send_keys", Path: "input", Action: SendKeys}
	if err := send.Set(context.Background(), tg, "9"); err != nil {
		t.Fatalf("send keys: %v", err)
	}
	if _, err := send.Get(context.Background(), tg); !errors.Is(err, ErrWriteOnly) {
		t.Errorf("get action: got %v, want write-only", err)
	}
}

func TestRegistry_Inheritance(t *testing.T) {
	r := NewRegistry()
	c, err := r.Define(ClassDef{
		Name:   "shop",
		Parent: ClassAngular,
		Component: []Descriptor{
			{Kind: DescAction, Name: "click", Action: Submit},
			{Kind: DescConstant, Name: "kind", Value: "shop"},
		},
		Timeouts: map[string]time.Duration{TimeoutShort: time.Second},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	if !c.Inherits(ClassRoot) || !c.Inherits(ClassWaitBase) {
		t.Error("shop should inherit .root and wait.base")
	}
	if got := c.ComponentNames(); len(got) != 5 {
		t.Errorf("component names: got %v", got)
	}
	if d, _ := c.Component("click"); d.Kind != DescAction {
		t.Errorf("click: got %v", d)
	}
	if _, ok := c.Page("title"); !ok {
		t.Error("page descriptor title not inherited")
	}
	if got := len(c.Waits()); got != 2 {
		t.Errorf("waits: got %d, want 2 (wait.base then angular)", got)
	}
	if d, _ := c.Timeout(TimeoutShort); d != time.Second {
		t.Errorf("short timeout: got %s", d)
	}
	if d, _ := c.Timeout(TimeoutLong); d != time.Minute {
		t.Errorf("long timeout: got %s", d)
	}

	root, _ := r.Get(ClassRoot)
	if d, _ := root.Component("click"); d.Kind != DescAction || d.Name != "click" {
		t.Errorf("root click changed: %v", d)
	}

	if _, err := r.Define(ClassDef{Name: "shop"}); !errors.Is(err, pagelem.ErrAmbiguous) {
		t.Errorf("redefine: got %v, want ambiguous", err)
	}
	if _, err := r.Define(ClassDef{Name: "x", Parent: "nope"}); err == nil {
		t.Error("unknown parent: expected error")
	}
	_, err = r.Define(ClassDef{Name: "dup", Component: []Descriptor{{Name: "a"}, {Name: "a"}}})
	if !errors.Is(err, pagelem.ErrAmbiguous) {
		t.Errorf("duplicate descriptor: got %v, want ambiguous", err)
	}
}

func TestInstance_Chain(t *testing.T) {
	r := NewRegistry()
	page, _ := r.Get(ClassPage)
	root := New(page, nil)
	root.SetVar("user", "ann")
	root.SetRecoverStale(true)

	child := root.Child(nil)
	child.SetVar("lang", "fr")
	if v, _ := child.Var("user"); v != "ann" {
		t.Errorf("inherited var: got %v", v)
	}
	if _, ok := root.Var("lang"); ok {
		t.Error("child var leaked to parent")
	}
	if !child.RecoverStale() {
		t.Error("recover stale not inherited")
	}
	child.SetRecoverStale(false)
	if child.RecoverStale() || !root.RecoverStale() {
		t.Error("recover stale override")
	}
	if child.ID == root.ID || child.ID == "" {
		t.Errorf("ids: %q %q", root.ID, child.ID)
	}
	if got := child.Vars(); got["user"] != "ann" || got["lang"] != "fr" {
		t.Errorf("vars: got %v", got)
	}
	if d := child.Timeout(TimeoutMedium, 0); d != 20*time.Second {
		t.Errorf("medium: got %s", d)
	}
	if _, ok := child.PageDescriptor("url"); !ok {
		t.Error("page descriptor url missing")
	}
}

func TestInstance_Slots(t *testing.T) {
	caller := New(nil, nil)
	content := &pagelem.Element{Kind: pagelem.NodeNamed}
	inst := caller.Child(nil, WithSlots(map[string]*pagelem.Element{"cell": content}, caller))
	nested := inst.Child(nil)
	e, from, ok := nested.Slot("cell")
	if !ok || e != content || from != caller {
		t.Errorf("slot: got %v %v %v", e, from, ok)
	}
	if _, _, ok := nested.Slot("other"); ok {
		t.Error("slot other should miss")
	}
	if _, _, ok := caller.Slot("cell"); ok {
		t.Error("caller sees its own substitutions")
	}
}

type evalFunc func(ctx context.Context, script string) (any, error)

func (f evalFunc) Eval(ctx context.Context, script string) (any, error) { return f(ctx, script) }

func TestWaitReady(t *testing.T) {
	r := NewRegistry()
	c, _ := r.Define(ClassDef{
		Name:     "slow",
		Parent:   ClassWaitBase,
		Wait:     []string{"ready"},
		Timeouts: map[string]time.Duration{TimeoutShort: 300 * time.Millisecond},
	})
	calls := 0
	ev := evalFunc(func(ctx context.Context, script string) (any, error) {
		if script != "ready" {
			return true, nil
		}
		calls++
		return calls >= 3, nil
	})
	s := New(c, nil)
	if err := s.WaitReady(context.Background(), ev, TimeoutShort); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}

	never := evalFunc(func(ctx context.Context, script string) (any, error) { return false, nil })
	err := s.WaitReady(context.Background(), never, TimeoutShort)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("never ready: got %v, want deadline exceeded", err)
	}

	var _ remote.Evaluator = ev
}
