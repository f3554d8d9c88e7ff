package scope

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/hazyhaar/pagelem"
)

// ClassDef declares a scope class.
type ClassDef struct {
	Name   string
	Parent string

	// Component descriptors apply to every component resolved in the
	// scope; Page descriptors to the page (the scope root).
	Component []Descriptor
	Page      []Descriptor

	// Wait lists readiness conditions, each a script body returning true
	// once the page is ready.
	Wait []string

	Timeouts map[string]time.Duration
}

// Class is a built scope class. Its maps already hold the inherited
// entries, so lookups never walk the chain.
type Class struct {
	Name   string
	Parent *Class

	component map[string]*Descriptor
	page      map[string]*Descriptor
	waits     []string
	timeouts  map[string]time.Duration
}

func buildClass(def ClassDef, parent *Class) (*Class, error) {
	c := &Class{
		Name:      def.Name,
		Parent:    parent,
		component: map[string]*Descriptor{},
		page:      map[string]*Descriptor{},
		timeouts:  map[string]time.Duration{},
	}
	if parent != nil {
		maps.Copy(c.component, parent.component)
		maps.Copy(c.page, parent.page)
		maps.Copy(c.timeouts, parent.timeouts)
		c.waits = slices.Clone(parent.waits)
	}
	for _, set := range []struct {
		decl []Descriptor
		into map[string]*Descriptor
	}{{def.Component, c.component}, {def.Page, c.page}} {
		seen := map[string]bool{}
		for i := range set.decl {
			d := set.decl[i]
			if d.Name == "" {
				return nil, fmt.Errorf("scope: class %s: descriptor without a name", def.Name)
			}
			if seen[d.Name] {
				return nil, pagelem.Ambiguous("class %s declares %q twice", def.Name, d.Name)
			}
			seen[d.Name] = true
			set.into[d.Name] = &d
		}
	}
	maps.Copy(c.timeouts, def.Timeouts)
	c.waits = append(c.waits, def.Wait...)
	return c, nil
}

// Component returns the component descriptor called name.
func (c *Class) Component(name string) (*Descriptor, bool) {
	d, ok := c.component[name]
	return d, ok
}

// Page returns the page descriptor called name.
func (c *Class) Page(name string) (*Descriptor, bool) {
	d, ok := c.page[name]
	return d, ok
}

// ComponentNames lists the component descriptors in sorted order.
func (c *Class) ComponentNames() []string { return slices.Sorted(maps.Keys(c.component)) }

// PageNames lists the page descriptors in sorted order.
func (c *Class) PageNames() []string { return slices.Sorted(maps.Keys(c.page)) }

// Waits returns the readiness conditions, ancestors first.
func (c *Class) Waits() []string { return slices.Clone(c.waits) }

// Timeout returns the named timeout.
func (c *Class) Timeout(name string) (time.Duration, bool) {
	d, ok := c.timeouts[name]
	return d, ok
}

// Inherits reports whether c is name or descends from it.
func (c *Class) Inherits(name string) bool {
	for k := c; k != nil; k = k.Parent {
		if k.Name == name {
			return true
		}
	}
	return false
}

// Registry holds scope classes by name. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewRegistry returns a registry holding the built-in classes.
func NewRegistry() *Registry {
	r := &Registry{classes: map[string]*Class{}}
	for _, def := range builtinClasses() {
		if _, err := r.Define(def); err != nil {
			panic(err)
		}
	}
	return r
}

// Define builds and registers a class. The parent must already exist.
func (r *Registry) Define(def ClassDef) (*Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if def.Name == "" {
		return nil, fmt.Errorf("scope: class without a name")
	}
	if _, dup := r.classes[def.Name]; dup {
		return nil, pagelem.Ambiguous("scope class %q defined twice", def.Name)
	}
	var parent *Class
	if def.Parent != "" {
		p, ok := r.classes[def.Parent]
		if !ok {
			return nil, fmt.Errorf("scope: class %s: unknown parent %q", def.Name, def.Parent)
		}
		parent = p
	}
	c, err := buildClass(def, parent)
	if err != nil {
		return nil, err
	}
	r.classes[def.Name] = c
	return c, nil
}

// Get returns the class called name.
func (r *Registry) Get(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c, ok
}

// Has reports whether name is defined. Suitable for pagelem.WithControllers.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names lists the defined classes in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.classes))
}
