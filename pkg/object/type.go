package object

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"weak"
)

// InitMethod is the attribute called by Type.New on a fresh instance.
const InitMethod = "init"

// Type is a stable handle to a type definition. Besides its attribute
// dictionary it keeps a weak index of every instance it constructed or
// adopted, which is how a reload finds the instances to retarget.
type Type struct {
	name   string
	unit   string
	frozen atomic.Bool

	mu    sync.RWMutex
	attrs map[string]Entity

	imu       sync.Mutex
	instances []weak.Pointer[Instance]
}

// NewType creates a type named name owned by unit.
func NewType(unit, name string, attrs map[string]Entity) *Type {
	t := &Type{name: name, unit: unit, attrs: maps.Clone(attrs)}
	if t.attrs == nil {
		t.attrs = make(map[string]Entity)
	}
	return t
}

// Kind implements Entity.
func (t *Type) Kind() Kind { return KindType }

// Name returns the type's name.
func (t *Type) Name() string { return t.name }

// Unit returns the unit that defined the type.
func (t *Type) Unit() string { return t.unit }

// Freeze makes the attribute dictionary read-only.
func (t *Type) Freeze() { t.frozen.Store(true) }

// Frozen reports whether the attribute dictionary is read-only.
func (t *Type) Frozen() bool { return t.frozen.Load() }

// Attr returns the attribute defined directly on the type.
func (t *Type) Attr(name string) (Entity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.attrs[name]
	return e, ok
}

// AttrNames returns the attribute names in sorted order.
func (t *Type) AttrNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := slices.Collect(maps.Keys(t.attrs))
	slices.Sort(names)
	return names
}

// SetAttr defines or replaces an attribute.
func (t *Type) SetAttr(name string, e Entity) error {
	if t.Frozen() {
		return &AttributeError{Type: t.name, Name: name, ReadOnly: true}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attrs[name] = e
	return nil
}

// DelAttr removes an attribute.
func (t *Type) DelAttr(name string) error {
	if t.Frozen() {
		return &AttributeError{Type: t.name, Name: name, ReadOnly: true}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.attrs[name]; !ok {
		return &AttributeError{Type: t.name, Name: name}
	}
	delete(t.attrs, name)
	return nil
}

// New constructs an instance with the given fields and runs the init
// method, if the type has one, with args.
func (t *Type) New(fields map[string]any, args ...any) (*Instance, error) {
	inst := &Instance{fields: maps.Clone(fields)}
	if inst.fields == nil {
		inst.fields = make(map[string]any)
	}
	inst.typ.Store(t)
	t.adopt(inst)
	if attr, ok := t.Attr(InitMethod); ok {
		if f, ok := attr.(*Func); ok {
			if _, err := f.Call(append([]any{inst}, args...)...); err != nil {
				return nil, err
			}
		}
	}
	return inst, nil
}

// Instances returns the live instances whose type is currently t. Dead or
// departed entries are dropped from the index.
func (t *Type) Instances() []*Instance {
	t.imu.Lock()
	defer t.imu.Unlock()
	live := t.instances[:0]
	var out []*Instance
	for _, wp := range t.instances {
		inst := wp.Value()
		if inst == nil || inst.Type() != t {
			continue
		}
		live = append(live, wp)
		out = append(out, inst)
	}
	clear(t.instances[len(live):])
	t.instances = live
	return out
}

// Retarget moves every live instance of exactly t over to next and returns
// how many were moved.
func (t *Type) Retarget(next *Type) int {
	if next == nil || next == t {
		return 0
	}
	moved := 0
	for _, inst := range t.Instances() {
		if inst.typ.CompareAndSwap(t, next) {
			next.adopt(inst)
			moved++
		}
	}
	t.Instances()
	return moved
}

func (t *Type) adopt(inst *Instance) {
	t.imu.Lock()
	defer t.imu.Unlock()
	t.instances = append(t.instances, weak.Make(inst))
}

// Instance is an object created by a Type.
type Instance struct {
	typ atomic.Pointer[Type]

	mu     sync.RWMutex
	fields map[string]any
}

// Kind implements Entity.
func (i *Instance) Kind() Kind { return KindInstance }

// Unit returns the unit of the instance's current type.
func (i *Instance) Unit() string { return i.Type().Unit() }

// Type returns the instance's current type.
func (i *Instance) Type() *Type { return i.typ.Load() }

// Field returns a field stored on the instance itself.
func (i *Instance) Field(name string) (any, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.fields[name]
	return v, ok
}

// Fields returns a copy of the instance's own fields.
func (i *Instance) Fields() map[string]any {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return maps.Clone(i.fields)
}

// Get resolves name: properties first, then own fields, then the type's
// attributes. Functions come back bound to the instance.
func (i *Instance) Get(name string) (any, error) {
	t := i.Type()
	attr, hasAttr := t.Attr(name)
	if p, ok := attr.(*Property); ok {
		if p.Get == nil {
			return nil, &AttributeError{Type: t.Name(), Name: name}
		}
		return p.Get.Call(i)
	}
	if v, ok := i.Field(name); ok {
		return v, nil
	}
	if !hasAttr {
		return nil, &AttributeError{Type: t.Name(), Name: name}
	}
	if f, ok := attr.(*Func); ok {
		return &Method{Self: i, Func: f}, nil
	}
	return Unwrap(attr), nil
}

// Set assigns name, going through a property setter when one exists.
func (i *Instance) Set(name string, v any) error {
	t := i.Type()
	if attr, ok := t.Attr(name); ok {
		if p, ok := attr.(*Property); ok {
			if p.Set == nil {
				return &AttributeError{Type: t.Name(), Name: name, ReadOnly: true}
			}
			_, err := p.Set.Call(i, v)
			return err
		}
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.fields[name] = v
	return nil
}

// Delete removes name, going through a property deleter when one exists.
func (i *Instance) Delete(name string) error {
	t := i.Type()
	if attr, ok := t.Attr(name); ok {
		if p, ok := attr.(*Property); ok {
			if p.Del == nil {
				return &AttributeError{Type: t.Name(), Name: name, ReadOnly: true}
			}
			_, err := p.Del.Call(i)
			return err
		}
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.fields[name]; !ok {
		return &AttributeError{Type: t.Name(), Name: name}
	}
	delete(i.fields, name)
	return nil
}

// CallMethod looks up name and calls it with args.
func (i *Instance) CallMethod(name string, args ...any) (any, error) {
	v, err := i.Get(name)
	if err != nil {
		return nil, err
	}
	switch m := v.(type) {
	case *Method:
		return m.Call(args...)
	case *Func:
		return m.Call(args...)
	default:
		return nil, &AttributeError{Type: i.Type().Name(), Name: name}
	}
}
