package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/dbopen"
	"github.com/hazyhaar/pagelem/idgen"
)

const listSource = `<div class="list"><repeat this="[id]"><div id="[id]"><span this="label">[text]</span></div></repeat></div>`

func testStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return New(db, WithIDs(idgen.Sequence("tpl_")))
}

func TestPut_GetAndLocators(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e, err := s.Put(ctx, "list", []byte(listSource))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if e.ID != "tpl_1" || e.Hash != Hash([]byte(listSource)) {
		t.Errorf("entry: got %+v", e)
	}

	got, err := s.Get(ctx, "list")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Source != listSource {
		t.Errorf("source: got %q", got.Source)
	}

	tmpl, err := pagelem.Parse([]byte(listSource))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := tmpl.Tree()
	locs, err := s.Locators(ctx, "list")
	if err != nil {
		t.Fatalf("locators: %v", err)
	}
	if len(locs) != len(want) {
		t.Fatalf("locators: got %d, want %d", len(locs), len(want))
	}
	for i, l := range locs {
		w := want[i]
		if l.Name != w.Name || l.Locator != w.Locator || l.Depth != w.Depth || l.Kind != w.Kind.String() {
			t.Errorf("locator %d: got %+v, want %+v", i, l, w)
		}
	}
}

func TestPut_Replace(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first, err := s.Put(ctx, "list", []byte(listSource))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	same, err := s.Put(ctx, "list", []byte(listSource))
	if err != nil {
		t.Fatalf("put again: %v", err)
	}
	if same.ID != first.ID || same.UpdatedAt != first.UpdatedAt {
		t.Errorf("unchanged source rewritten: %+v vs %+v", same, first)
	}

	next, err := s.Put(ctx, "list", []byte(`<div class="other" this="x"></div>`))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if next.ID != first.ID {
		t.Errorf("id changed on replace: got %s, want %s", next.ID, first.ID)
	}
	locs, _ := s.Locators(ctx, "list")
	if len(locs) != 1 || locs[0].Name != "x" {
		t.Errorf("locators after replace: got %+v", locs)
	}
}

func TestPut_RejectsBadSource(t *testing.T) {
	s := testStore(t)
	_, err := s.Put(context.Background(), "bad", []byte(`<pe-bogus></pe-bogus>`))
	if pagelem.KindOf(err) != pagelem.KindParse {
		t.Fatalf("got %v, want parse error", err)
	}
	if _, err := s.Get(context.Background(), "bad"); !errors.Is(err, ErrUnknown) {
		t.Errorf("rejected source stored: %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, n := range []string{"b", "a"} {
		if _, err := s.Put(ctx, n, []byte(listSource)); err != nil {
			t.Fatalf("put %s: %v", n, err)
		}
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "b" || list[0].Source != "" {
		t.Fatalf("list: got %+v", list)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "a"); !errors.Is(err, ErrUnknown) {
		t.Errorf("second delete: got %v, want ErrUnknown", err)
	}
	var n int
	s.DB.QueryRow(`SELECT count(*) FROM locators`).Scan(&n)
	locs, _ := s.Locators(ctx, "b")
	if n != len(locs) {
		t.Errorf("orphan locators: %d rows, %d for b", n, len(locs))
	}
}
