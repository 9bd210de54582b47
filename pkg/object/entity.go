// Package object defines the entities that live in a unit's namespace.
//
// Entities form a closed set: plain values, functions, types, computed
// properties, bound methods and instances. Functions, types and instances
// are stable handles: a reload patches them in place, so code holding an
// old handle observes the new behaviour without being handed a new pointer.
package object

// Kind discriminates the entity variants.
type Kind int

const (
	KindValue Kind = iota
	KindFunc
	KindType
	KindProperty
	KindMethod
	KindInstance
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindFunc:
		return "func"
	case KindType:
		return "type"
	case KindProperty:
		return "property"
	case KindMethod:
		return "method"
	case KindInstance:
		return "instance"
	default:
		return "unknown"
	}
}

// Entity is anything that can be bound to an identifier in a namespace.
type Entity interface {
	Kind() Kind
}

// Owned is implemented by entities that record the unit defining them.
type Owned interface {
	Entity
	Unit() string
}

// Value wraps plain data (numbers, strings, maps, slices).
type Value struct {
	V any
}

// Kind implements Entity.
func (Value) Kind() Kind { return KindValue }

// Wrap turns an arbitrary Go value into an entity. Entities pass through.
func Wrap(v any) Entity {
	if e, ok := v.(Entity); ok {
		return e
	}
	return Value{V: v}
}

// Unwrap returns the Go value carried by a Value and the entity itself
// otherwise.
func Unwrap(e Entity) any {
	if v, ok := e.(Value); ok {
		return v.V
	}
	return e
}

// OwnerOf returns the unit that defines e, or "" when e carries no owner.
func OwnerOf(e Entity) string {
	if o, ok := e.(Owned); ok {
		return o.Unit()
	}
	return ""
}
