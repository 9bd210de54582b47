// Package superreload re-executes a unit and reconciles the entities it
// previously defined with the ones it defines now.
package superreload

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mevdschee/tqreload/pkg/metrics"
	"github.com/mevdschee/tqreload/pkg/object"
	"github.com/mevdschee/tqreload/pkg/patch"
	"github.com/mevdschee/tqreload/pkg/unit"
)

// Sink receives identifiers that appear for the first time when an
// interactive consumer (a REPL-like namespace) wants to see them.
type Sink interface {
	Expose(name string, e object.Entity)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(name string, e object.Entity)

// Expose implements Sink.
func (f SinkFunc) Expose(name string, e object.Entity) { f(name, e) }

// Unit metadata identifiers. They are never handed to a sink and are only
// tracked when the unit itself defines them.
var reserved = map[string]bool{
	"__name__": true,
	"__doc__":  true,
	"__file__": true,
	"__unit__": true,
}

// Reserved reports whether name is a unit metadata identifier.
func Reserved(name string) bool {
	return reserved[name]
}

// Error reports a failed re-execution. The unit's namespace has already been
// restored when it is returned.
type Error struct {
	Unit string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("reload %s: %v", e.Unit, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func trackable(u *unit.Unit, name string, e object.Entity, exposing bool) bool {
	inUnit := object.OwnerOf(e) == u.Name
	if exposing {
		return inUnit || !Reserved(name)
	}
	return inUnit
}

// Reload re-executes u through table and patches every tracked old entity
// with its new counterpart. A failed execution leaves the namespace exactly
// as it was before the call. sink may be nil.
func Reload(ctx context.Context, table *unit.Table, u *unit.Unit, tracker *Tracker, sink Sink) error {
	start := time.Now()
	ns := u.Namespace()

	for _, it := range ns.Items() {
		if trackable(u, it.Name, it.Entity, false) {
			tracker.Track(Key{Unit: u.Name, Name: it.Name}, it.Entity)
		}
	}

	snap := ns.Snapshot()
	if err := table.Exec(ctx, u); err != nil {
		ns.Restore(snap)
		metrics.Get().RecordUnitReload(u.Name, time.Since(start), err)
		return &Error{Unit: u.Name, Err: err}
	}

	patched := 0
	for _, it := range ns.Items() {
		key := Key{Unit: u.Name, Name: it.Name}
		if !tracker.Has(key) {
			if sink == nil || Reserved(it.Name) || !trackable(u, it.Name, it.Entity, true) {
				continue
			}
			if tracker.Track(key, it.Entity) {
				sink.Expose(it.Name, it.Entity)
			}
			continue
		}
		for _, old := range tracker.Live(key) {
			if old == it.Entity {
				continue
			}
			if patch.Reconcile(old, it.Entity) {
				patched++
			}
		}
	}

	left := tracker.Prune()
	metrics.Get().TrackedKeys.Set(float64(left))
	metrics.Get().RecordUnitReload(u.Name, time.Since(start), nil)
	log.Printf("Reloaded unit %s (%d entities patched)", u.Name, patched)
	return nil
}
