package scope

import (
	"log/slog"
	"time"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/idgen"
)

// Instance is the runtime frame of a Class. An Instance tree belongs to a
// single remote session and must be driven from one goroutine at a time.
type Instance struct {
	ID     string
	Class  *Class
	Parent *Instance

	templates map[string]*pagelem.Element
	slots     map[string]*pagelem.Element
	// slotCaller is the scope the slot substitutions were written in.
	slotCaller *Instance
	// slotOwner and slotScope are the slot being filled and the template
	// scope it belongs to, for pe-slotcontent.
	slotOwner *pagelem.Element
	slotScope *Instance

	vars    map[string]any
	recover int8

	logger *slog.Logger
}

// InstanceOption configures a new Instance.
type InstanceOption func(*Instance)

// WithTemplates makes the sub-templates of a parsed file available to
// use-template nodes resolved in the scope and its children.
func WithTemplates(t map[string]*pagelem.Element) InstanceOption {
	return func(s *Instance) { s.templates = t }
}

// WithSlots sets the slot substitutions of a template instantiation and
// the scope they were declared in.
func WithSlots(slots map[string]*pagelem.Element, caller *Instance) InstanceOption {
	return func(s *Instance) {
		s.slots = slots
		s.slotCaller = caller
	}
}

// WithSlotContent marks a frame created to resolve the substitution of
// slot, declared in the template scope owner.
func WithSlotContent(slot *pagelem.Element, owner *Instance) InstanceOption {
	return func(s *Instance) {
		s.slotOwner = slot
		s.slotScope = owner
	}
}

// WithInstanceLogger sets the logger. Children inherit it.
func WithInstanceLogger(l *slog.Logger) InstanceOption {
	return func(s *Instance) { s.logger = l }
}

// New creates a root or child frame of class.
func New(class *Class, parent *Instance, opts ...InstanceOption) *Instance {
	s := &Instance{
		ID:     idgen.Scope(),
		Class:  class,
		Parent: parent,
		vars:   map[string]any{},
	}
	if parent != nil {
		s.logger = parent.logger
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Child creates a frame parented to s. A nil class keeps s's class.
func (s *Instance) Child(class *Class, opts ...InstanceOption) *Instance {
	if class == nil {
		class = s.Class
	}
	return New(class, s, opts...)
}

// Logger returns the scope logger.
func (s *Instance) Logger() *slog.Logger { return s.logger }

// Template looks up a sub-template along the parent chain.
func (s *Instance) Template(id string) (*pagelem.Element, bool) {
	for k := s; k != nil; k = k.Parent {
		if t, ok := k.templates[id]; ok {
			return t, true
		}
	}
	return nil, false
}

// Slot returns the substitution for the named slot and the scope it must
// be resolved in. Only the nearest template instantiation is consulted.
func (s *Instance) Slot(name string) (*pagelem.Element, *Instance, bool) {
	for k := s; k != nil; k = k.Parent {
		if k.slots == nil {
			continue
		}
		e, ok := k.slots[name]
		return e, k.slotCaller, ok
	}
	return nil, nil, false
}

// SlotContent returns the slot whose substitution is being resolved and
// the template scope to resolve its own content in.
func (s *Instance) SlotContent() (*pagelem.Element, *Instance, bool) {
	for k := s; k != nil; k = k.Parent {
		if k.slotOwner != nil {
			return k.slotOwner, k.slotScope, true
		}
	}
	return nil, nil, false
}

// Var looks up a scoped variable along the parent chain.
func (s *Instance) Var(name string) (any, bool) {
	for k := s; k != nil; k = k.Parent {
		if v, ok := k.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// SetVar stores a variable on s.
func (s *Instance) SetVar(name string, v any) { s.vars[name] = v }

// Vars returns every variable visible from s, nearer frames winning.
func (s *Instance) Vars() map[string]any {
	out := map[string]any{}
	var chain []*Instance
	for k := s; k != nil; k = k.Parent {
		chain = append(chain, k)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for n, v := range chain[i].vars {
			out[n] = v
		}
	}
	return out
}

// SetRecoverStale turns stale handle recovery on or off for s and the
// frames below it that do not set it themselves.
func (s *Instance) SetRecoverStale(on bool) {
	if on {
		s.recover = 1
	} else {
		s.recover = -1
	}
}

// RecoverStale reports whether stale handles resolved in s are re-located.
func (s *Instance) RecoverStale() bool {
	for k := s; k != nil; k = k.Parent {
		if k.recover != 0 {
			return k.recover > 0
		}
	}
	return false
}

// Timeout returns the named timeout of the class, or fallback.
func (s *Instance) Timeout(name string, fallback time.Duration) time.Duration {
	if s.Class != nil {
		if d, ok := s.Class.Timeout(name); ok {
			return d
		}
	}
	return fallback
}

// ComponentDescriptor looks up a class component descriptor.
func (s *Instance) ComponentDescriptor(name string) (*Descriptor, bool) {
	if s.Class == nil {
		return nil, false
	}
	return s.Class.Component(name)
}

// PageDescriptor looks up a class page descriptor along the frames: the
// page of a nested controller scope is still the document.
func (s *Instance) PageDescriptor(name string) (*Descriptor, bool) {
	for k := s; k != nil; k = k.Parent {
		if k.Class == nil {
			continue
		}
		if d, ok := k.Class.Page(name); ok {
			return d, true
		}
	}
	return nil, false
}
