// Package unit tracks the compilation units loaded into the process.
package unit

import (
	"sync"
	"time"

	"github.com/mevdschee/tqreload/pkg/object"
)

// Origins that never change on disk.
const (
	OriginBuiltin = "built-in"
	OriginFrozen  = "frozen"
)

// Unit is a reloadable compilation unit. The pointer stays the same for the
// whole life of the process; reloads only rewrite its namespace.
type Unit struct {
	Name   string
	Origin string

	mu      sync.RWMutex
	modTime time.Time
	ns      *object.Namespace
}

// New creates an empty unit.
func New(name, origin string) *Unit {
	return &Unit{Name: name, Origin: origin, ns: object.NewNamespace()}
}

// Namespace returns the unit's live namespace.
func (u *Unit) Namespace() *object.Namespace {
	return u.ns
}

// ModTime returns the modification time recorded at the last load.
func (u *Unit) ModTime() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.modTime
}

// SetModTime records the modification time of the loaded source.
func (u *Unit) SetModTime(t time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.modTime = t
}

// Lookup returns the entity bound to name.
func (u *Unit) Lookup(name string) (object.Entity, bool) {
	return u.ns.Get(name)
}

// IsEntry reports whether name is one of the sentinel names of the
// program's own entry unit. A unit file named main.yaml is a regular unit.
func IsEntry(name string) bool {
	switch name {
	case "", "__main__":
		return true
	}
	return false
}

// IsStatic reports whether origin denotes code that cannot change.
func IsStatic(origin string) bool {
	switch origin {
	case "", OriginBuiltin, OriginFrozen:
		return true
	}
	return false
}
