package superreload

import (
	"weak"

	"github.com/mevdschee/tqreload/pkg/object"
)

// Key identifies a top-level binding across reloads.
type Key struct {
	Unit string
	Name string
}

type ref interface {
	get() object.Entity
}

type weakRef[T any] struct {
	p weak.Pointer[T]
}

func (r weakRef[T]) get() object.Entity {
	v := r.p.Value()
	if v == nil {
		return nil
	}
	e, _ := any(v).(object.Entity)
	return e
}

// makeRef returns a weak reference to e. Plain values cannot be referenced
// weakly and are never tracked.
func makeRef(e object.Entity) (ref, bool) {
	switch v := e.(type) {
	case *object.Func:
		return weakRef[object.Func]{weak.Make(v)}, v != nil
	case *object.Type:
		return weakRef[object.Type]{weak.Make(v)}, v != nil
	case *object.Property:
		return weakRef[object.Property]{weak.Make(v)}, v != nil
	case *object.Method:
		return weakRef[object.Method]{weak.Make(v)}, v != nil
	case *object.Instance:
		return weakRef[object.Instance]{weak.Make(v)}, v != nil
	}
	return nil, false
}

// Tracker remembers, per (unit, identifier), every old entity observed at
// that key. It only holds weak references, so it never keeps an old entity
// alive on its own. A Tracker is not safe for concurrent use; it belongs to
// the single goroutine driving reloads.
type Tracker struct {
	refs map[Key][]ref
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{refs: make(map[Key][]ref)}
}

// Track records e under key. It reports false when e cannot be referenced
// weakly. Tracking the same entity twice is a no-op.
func (t *Tracker) Track(key Key, e object.Entity) bool {
	r, ok := makeRef(e)
	if !ok {
		return false
	}
	for _, existing := range t.refs[key] {
		if existing.get() == e {
			return true
		}
	}
	t.refs[key] = append(t.refs[key], r)
	return true
}

// Has reports whether key has ever been tracked and not yet pruned.
func (t *Tracker) Has(key Key) bool {
	_, ok := t.refs[key]
	return ok
}

// Live returns the old entities under key that are still reachable, in the
// order they were tracked, and drops the dead references.
func (t *Tracker) Live(key Key) []object.Entity {
	refs, ok := t.refs[key]
	if !ok {
		return nil
	}
	kept := refs[:0]
	var out []object.Entity
	for _, r := range refs {
		if e := r.get(); e != nil {
			kept = append(kept, r)
			out = append(out, e)
		}
	}
	clear(refs[len(kept):])
	t.refs[key] = kept
	return out
}

// Prune removes every key whose references are all dead and returns the
// number of keys left.
func (t *Tracker) Prune() int {
	for key := range t.refs {
		if len(t.Live(key)) == 0 {
			delete(t.refs, key)
		}
	}
	return len(t.refs)
}

// Len returns the number of tracked keys.
func (t *Tracker) Len() int {
	return len(t.refs)
}
