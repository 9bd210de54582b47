package object

import (
	"maps"
	"slices"
	"sync"
)

// Item is one binding of a namespace.
type Item struct {
	Name   string
	Entity Entity
}

// Namespace maps identifiers to entities and remembers insertion order.
type Namespace struct {
	mu    sync.RWMutex
	order []string
	items map[string]Entity
}

// NewNamespace returns an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{items: make(map[string]Entity)}
}

// Get returns the entity bound to name.
func (ns *Namespace) Get(name string) (Entity, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	e, ok := ns.items[name]
	return e, ok
}

// Set binds name to e.
func (ns *Namespace) Set(name string, e Entity) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, ok := ns.items[name]; !ok {
		ns.order = append(ns.order, name)
	}
	ns.items[name] = e
}

// Delete unbinds name.
func (ns *Namespace) Delete(name string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, ok := ns.items[name]; !ok {
		return
	}
	delete(ns.items, name)
	ns.order = slices.DeleteFunc(ns.order, func(n string) bool { return n == name })
}

// Len returns the number of bindings.
func (ns *Namespace) Len() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return len(ns.items)
}

// Names returns the bound identifiers in insertion order.
func (ns *Namespace) Names() []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return slices.Clone(ns.order)
}

// Items returns the bindings in insertion order.
func (ns *Namespace) Items() []Item {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	out := make([]Item, 0, len(ns.order))
	for _, name := range ns.order {
		out = append(out, Item{Name: name, Entity: ns.items[name]})
	}
	return out
}

// Snapshot returns a shallow copy of the namespace.
func (ns *Namespace) Snapshot() *Namespace {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return &Namespace{order: slices.Clone(ns.order), items: maps.Clone(ns.items)}
}

// Restore replaces every binding with the bindings of snap.
func (ns *Namespace) Restore(snap *Namespace) {
	snap.mu.RLock()
	order := slices.Clone(snap.order)
	items := maps.Clone(snap.items)
	snap.mu.RUnlock()

	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.order = order
	ns.items = items
	if ns.items == nil {
		ns.items = make(map[string]Entity)
	}
}
