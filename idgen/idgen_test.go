package idgen

import (
	"strings"
	"sync"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	if len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Fatalf("UUIDv7: got %q, want 8-4-4-4-12", id)
	}
	if id[14] != '7' {
		t.Errorf("UUIDv7: version nibble %q, want 7", id[14])
	}
	if _, err := Parse(id); err != nil {
		t.Errorf("Parse(%q): %v", id, err)
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		id := gen()
		if id <= prev {
			t.Fatalf("UUIDv7: %q not after %q", id, prev)
		}
		prev = id
	}
}

func TestPrefixed(t *testing.T) {
	id := Scope()
	if !strings.HasPrefix(id, "scp_") {
		t.Errorf("Scope: got %q, want scp_ prefix", id)
	}
	if _, err := Parse(strings.TrimPrefix(id, "scp_")); err != nil {
		t.Errorf("Scope suffix: %v", err)
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("s")
	if got := gen(); got != "s1" {
		t.Fatalf("first: got %q, want s1", got)
	}
	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, dup := seen.LoadOrStore(gen(), true); dup {
				t.Error("Sequence: duplicate id")
			}
		}()
	}
	wg.Wait()
	if got := gen(); got != "s52" {
		t.Errorf("after 51: got %q, want s52", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Error("Parse: expected error")
	}
}
