package pagelem

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// BuildFunc constructs the node for a start tag.
type BuildFunc func(tag string, attrs []Attr) (*Element, error)

type regEntry struct {
	inherits string
	build    BuildFunc
}

// Registry maps dispatch keys ("tag.div", "named", "any") to node builders.
// Entries may inherit the builder of another key. A Registry is mutable
// until Freeze and read-only (safe for concurrent use) afterwards.
type Registry struct {
	entries map[string]regEntry
	frozen  bool
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]regEntry)}
}

// Register adds key. A nil build inherits the builder of inherits.
func (r *Registry) Register(key, inherits string, build BuildFunc) error {
	if r.frozen {
		return fmt.Errorf("pagelem: registry is frozen, cannot register %q", key)
	}
	if _, dup := r.entries[key]; dup {
		return Ambiguous("dispatch key %q registered twice", key)
	}
	if build == nil && inherits == "" {
		return fmt.Errorf("pagelem: %q has neither a builder nor a parent", key)
	}
	r.entries[key] = regEntry{inherits: inherits, build: build}
	return nil
}

// Freeze makes the registry read-only and checks that every inherits
// chain ends at a builder.
func (r *Registry) Freeze() (*Registry, error) {
	for key := range r.entries {
		if _, err := r.builder(key); err != nil {
			return nil, err
		}
	}
	r.frozen = true
	return r, nil
}

func (r *Registry) builder(key string) (BuildFunc, error) {
	seen := map[string]bool{}
	for k := key; k != ""; {
		if seen[k] {
			return nil, fmt.Errorf("pagelem: inheritance cycle at %q", k)
		}
		seen[k] = true
		e, ok := r.entries[k]
		if !ok {
			return nil, fmt.Errorf("pagelem: %q inherits from unknown %q", key, k)
		}
		if e.build != nil {
			return e.build, nil
		}
		k = e.inherits
	}
	return nil, fmt.Errorf("pagelem: no builder for %q", key)
}

// Resolve returns the first registered key among candidates and its
// builder, following inheritance for entries without their own builder.
func (r *Registry) Resolve(candidates ...string) (string, BuildFunc, error) {
	for _, c := range candidates {
		if _, ok := r.entries[c]; !ok {
			continue
		}
		b, err := r.builder(c)
		if err != nil {
			return "", nil, err
		}
		return c, b, nil
	}
	return "", nil, fmt.Errorf("unknown tag, tried %s", strings.Join(candidates, ", "))
}

// Inherits reports whether key is ancestor or descends from it.
func (r *Registry) Inherits(key, ancestor string) bool {
	for k, n := key, 0; k != "" && n < len(r.entries); n++ {
		if k == ancestor {
			return true
		}
		k = r.entries[k].inherits
	}
	return false
}

// Keys lists the registered dispatch keys in sorted order.
func (r *Registry) Keys() []string {
	return slices.Sorted(maps.Keys(r.entries))
}

// DispatchKeys is the candidate list for a start tag.
func DispatchKeys(tag string, named bool) []string {
	if named {
		return []string{"named." + tag, "tag." + tag, "named"}
	}
	return []string{"tag." + tag, "any"}
}

var (
	stdOnce     sync.Once
	stdRegistry *Registry
)

// Standard returns the frozen registry of built-in page elements.
func Standard() *Registry {
	stdOnce.Do(func() {
		r, err := newStandard()
		if err != nil {
			panic(err)
		}
		stdRegistry = r
	})
	return stdRegistry
}

// NewStandard returns an unfrozen copy of the built-in declarations, for
// callers that add their own tags before freezing.
func NewStandard() *Registry {
	r := NewRegistry()
	for _, d := range standardDecls {
		if err := r.Register(d.key, d.inherits, d.build); err != nil {
			panic(err)
		}
	}
	return r
}

func newStandard() (*Registry, error) {
	return NewStandard().Freeze()
}

var standardDecls = []struct {
	key, inherits string
	build         BuildFunc
}{
	{".domContainer", "", buildGeneric},
	{"tag.pe-any", ".domContainer", buildPeAny},
	{"any", "tag.pe-any", buildGeneric},
	{"named", "any", buildNamed},
	{"named.pe-any", "named", nil},
	{"tag.input", "any", buildInput},
	{"tag.textarea", "tag.input", nil},
	{"tag.select", "tag.input", nil},
	{"tag.body", "any", buildBody},
	{"tag.html", "", buildHTML},
	{"tag.head", "", buildHead},
	{"tag.script", "", buildScript},
	{"tag.link", "", buildLink},
	{"tag.pe-deep", ".domContainer", buildDeep},
	{"tag.pe-root", ".domContainer", buildRootReset},
	{"tag.pe-repeat", ".domContainer", buildRepeat},
	{"tag.repeat", "tag.pe-repeat", nil},
	{"tag.pe-choice", ".domContainer", buildChoice},
	{"tag.choice", "tag.pe-choice", nil},
	{"tag.pe-group", ".domContainer", buildGroup},
	{"tag.group", "tag.pe-group", nil},
	{"tag.pe-matchid", ".domContainer", buildMatchID},
	{"tag.pe-regex", "", buildRegex},
	{"tag.pe-data", "", buildData},
	{"tag.pe-slotcontent", "", buildSlotContent},
	{"tag.template", ".domContainer", buildTemplate},
	{"tag.slot", ".domContainer", buildSlot},
	{"tag.use-template", ".domContainer", buildUseTemplate},
}
