package rodremote

import (
	"context"
	"net/url"
	"os"
	"reflect"
	"testing"

	"github.com/go-rod/rod/lib/input"

	"github.com/hazyhaar/pagelem/remote"
)

func TestBlocked(t *testing.T) {
	set := map[string]bool{"images": true, "media": true, "xhr": true}
	for typ, want := range map[string]bool{
		"Image":      true,
		"Media":      true,
		"XHR":        true,
		"Font":       false,
		"Stylesheet": false,
		"Document":   false,
	} {
		if got := blocked(set, typ); got != want {
			t.Errorf("%s: got %v, want %v", typ, got, want)
		}
	}
}

func TestSplitKeys(t *testing.T) {
	got := splitKeys("ab" + remote.KeyEnd + "c" + remote.KeyEnter)
	want := []keyToken{{text: "ab"}, {key: input.End}, {text: "c"}, {key: input.Enter}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got := splitKeys(""); len(got) != 0 {
		t.Errorf("empty: got %+v", got)
	}
}

// The browser tests need a Chrome the launcher can find or download; set
// PAGELEM_CHROME=1 to run them.
func openPage(t *testing.T, html string) *Backend {
	t.Helper()
	if os.Getenv("PAGELEM_CHROME") == "" {
		t.Skip("PAGELEM_CHROME not set")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(Config{Stealth: true, Block: []string{"images"}})
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		m.Close()
	})
	b, err := m.Open(ctx, "data:text/html,"+url.PathEscape(html))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return b
}

func TestBackend_Chrome(t *testing.T) {
	b := openPage(t, `<html><body><ul><li id="a" class="x">Alpha</li><li id="b">Beta <b>B</b> tail</li></ul><input id="q" value="v"></body></html>`)
	ctx := context.Background()

	doc, err := b.Document(ctx)
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	items, err := b.FindByPath(ctx, doc, "//ul/li")
	if err != nil || len(items) != 2 {
		t.Fatalf("find: got %d items, err %v", len(items), err)
	}
	again, err := b.FindByPath(ctx, items[0], "self::li")
	if err != nil || len(again) != 1 || again[0].Key() != items[0].Key() {
		t.Fatalf("same node must keep its key: %v %v", again, err)
	}
	if s, _ := b.Text(ctx, items[0]); s != "Alpha" {
		t.Errorf("text: got %q, want Alpha", s)
	}
	if v, ok, _ := b.Attribute(ctx, items[0], "class"); !ok || v != "x" {
		t.Errorf("class: got %q %v", v, ok)
	}
	if _, ok, _ := b.Attribute(ctx, items[1], "class"); ok {
		t.Error("absent attribute reported present")
	}
	if s, _ := b.PartialText(ctx, items[1], "", "B"); s != "Beta " {
		t.Errorf("partial: got %q, want %q", s, "Beta ")
	}

	q, err := b.FindByID(ctx, doc, "q")
	if err != nil || q == nil {
		t.Fatalf("find id: %v %v", q, err)
	}
	if err := b.Clear(ctx, q); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := b.SendKeys(ctx, q, "hello"+remote.KeyEnd); err != nil {
		t.Fatalf("keys: %v", err)
	}
	if v, _, _ := b.Attribute(ctx, q, "value"); v != "hello" {
		t.Errorf("value: got %q, want hello", v)
	}
	if none, err := b.FindByID(ctx, doc, "nope"); err != nil || none != nil {
		t.Errorf("missing id: got %v, %v", none, err)
	}

	if _, err := b.Eval(ctx, `document.getElementById("a").remove()`); err != nil {
		t.Fatalf("eval: %v", err)
	}
	stale, err := b.IsStale(ctx, items[0])
	if err != nil || !stale {
		t.Errorf("removed node: stale=%v err=%v", stale, err)
	}
	title, err := b.Eval(ctx, `return document.readyState`)
	if err != nil || title != "complete" {
		t.Errorf("readyState: got %v, %v", title, err)
	}
}
