// Package patch rewrites old entities in place so that they behave like
// their freshly loaded replacements.
package patch

import (
	"reflect"

	"github.com/mevdschee/tqreload/pkg/metrics"
	"github.com/mevdschee/tqreload/pkg/object"
)

// Reconcile patches old so it behaves like new and reports whether one of
// the rules applied. Both entities must be of the same kind; any other pair
// is left alone and the caller simply keeps the new binding.
func Reconcile(old, new object.Entity) bool {
	if old == nil || new == nil || old.Kind() != new.Kind() {
		return false
	}
	var applied bool
	switch o := old.(type) {
	case *object.Type:
		applied = Type(o, new.(*object.Type))
	case *object.Func:
		applied = Func(o, new.(*object.Func))
	case *object.Property:
		applied = Property(o, new.(*object.Property))
	case *object.Method:
		applied = Method(o, new.(*object.Method))
	}
	if applied {
		metrics.Get().RecordReconcile(old.Kind().String())
	}
	return applied
}

// Func swaps the body of old (code, defaults, closure, doc, attributes and
// globals) for the body of new.
func Func(old, new *object.Func) bool {
	if old == nil || new == nil {
		return false
	}
	if old != new {
		old.SetBody(new.Body())
	}
	return true
}

// Property reconciles the getter, setter and deleter independently.
func Property(old, new *object.Property) bool {
	if old == nil || new == nil {
		return false
	}
	Func(old.Get, new.Get)
	Func(old.Set, new.Set)
	Func(old.Del, new.Del)
	return true
}

// Method reconciles the underlying functions of two bound methods.
func Method(old, new *object.Method) bool {
	if old == nil || new == nil {
		return false
	}
	return Func(old.Func, new.Func)
}

// Type brings the attribute dictionary of old in line with new, then moves
// every live instance of old over to new. Attributes that cannot be written
// are skipped.
func Type(old, new *object.Type) bool {
	if old == nil || new == nil {
		return false
	}
	if old == new {
		return true
	}
	for _, name := range old.AttrNames() {
		oldAttr, ok := old.Attr(name)
		if !ok {
			continue
		}
		newAttr, ok := new.Attr(name)
		if !ok {
			_ = old.DelAttr(name)
			continue
		}
		if Equal(oldAttr, newAttr) {
			continue
		}
		if Reconcile(oldAttr, newAttr) {
			continue
		}
		_ = old.SetAttr(name, newAttr)
	}
	for _, name := range new.AttrNames() {
		if _, ok := old.Attr(name); ok {
			continue
		}
		if newAttr, ok := new.Attr(name); ok {
			_ = old.SetAttr(name, newAttr)
		}
	}

	if moved := old.Retarget(new); moved > 0 {
		metrics.Get().InstancesRetargeted.Add(float64(moved))
	}
	return true
}

// Equal reports whether two attribute values are interchangeable: plain
// values compare deeply, everything else by identity.
func Equal(a, b object.Entity) bool {
	av, aok := a.(object.Value)
	bv, bok := b.(object.Value)
	if aok && bok {
		return reflect.DeepEqual(av.V, bv.V)
	}
	if aok != bok {
		return false
	}
	return a == b
}
