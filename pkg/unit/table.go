package unit

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/mevdschee/tqreload/pkg/object"
)

// Loader executes a unit's backing source into the unit's live namespace.
// A failing loader may leave the namespace partially written.
type Loader interface {
	Exec(ctx context.Context, t *Table, u *Unit) error
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, t *Table, u *Unit) error

// Exec implements Loader.
func (f LoaderFunc) Exec(ctx context.Context, t *Table, u *Unit) error {
	return f(ctx, t, u)
}

// Table is the process-wide set of loaded units.
type Table struct {
	mu      sync.RWMutex
	units   map[string]*Unit
	loaders map[string]Loader
}

// NewTable creates a table whose units are executed by def unless a more
// specific loader is registered for the file extension.
func NewTable(def Loader) *Table {
	t := &Table{
		units:   make(map[string]*Unit),
		loaders: make(map[string]Loader),
	}
	if def != nil {
		t.loaders[""] = def
	}
	return t
}

// Handle registers a loader for files with extension ext (".yaml").
func (t *Table) Handle(ext string, l Loader) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loaders[ext] = l
}

// Extensions returns the extensions that have a dedicated loader.
func (t *Table) Extensions() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var exts []string
	for ext := range t.loaders {
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	slices.Sort(exts)
	return exts
}

func (t *Table) loaderFor(origin string) (Loader, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if l, ok := t.loaders[filepath.Ext(origin)]; ok {
		return l, nil
	}
	if l, ok := t.loaders[""]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("no loader for %s", origin)
}

// Load executes the file at origin as unit name and registers it. Loading a
// name twice returns the existing unit.
func (t *Table) Load(ctx context.Context, name, origin string) (*Unit, error) {
	if u, ok := t.Get(name); ok {
		return u, nil
	}
	abs, err := filepath.Abs(origin)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", origin, err)
	}
	u := New(name, abs)
	if err := t.Exec(ctx, u); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.units[name]; ok {
		return existing, nil
	}
	t.units[name] = u
	log.Printf("Loaded unit %s from %s", name, abs)
	return u, nil
}

// LoadDir loads every file in dir that has a registered extension.
// Individual failures are logged and skipped.
func (t *Table) LoadDir(ctx context.Context, dir string) ([]*Unit, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read unit directory: %w", err)
	}
	exts := t.Extensions()
	var units []*Unit
	for _, entry := range entries {
		if entry.IsDir() || !slices.Contains(exts, filepath.Ext(entry.Name())) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		u, err := t.Load(ctx, Name(path), path)
		if err != nil {
			log.Printf("Failed to load unit %s: %v", path, err)
			continue
		}
		units = append(units, u)
	}
	return units, nil
}

// Register adds a host-provided unit whose entities come from Go code. Its
// origin is built-in, so it is never reloaded.
func (t *Table) Register(name string, items ...object.Item) *Unit {
	u := New(name, OriginBuiltin)
	for _, it := range items {
		u.ns.Set(it.Name, it.Entity)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.units[name] = u
	return u
}

// Exec runs the unit's loader against the live namespace and records the
// source modification time on success.
func (t *Table) Exec(ctx context.Context, u *Unit) error {
	if IsStatic(u.Origin) {
		return fmt.Errorf("unit %s has no source to execute", u.Name)
	}
	l, err := t.loaderFor(u.Origin)
	if err != nil {
		return err
	}
	info, statErr := os.Stat(u.Origin)
	if err := l.Exec(ctx, t, u); err != nil {
		return err
	}
	if statErr == nil {
		u.SetModTime(info.ModTime())
	}
	return nil
}

// Get retrieves a unit by name.
func (t *Table) Get(name string) (*Unit, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.units[name]
	return u, ok
}

// Remove drops a unit from the table.
func (t *Table) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.units, name)
}

// List returns all units sorted by name.
func (t *Table) List() []*Unit {
	t.mu.RLock()
	defer t.mu.RUnlock()
	units := make([]*Unit, 0, len(t.units))
	for _, u := range t.units {
		units = append(units, u)
	}
	slices.SortFunc(units, func(a, b *Unit) int { return strings.Compare(a.Name, b.Name) })
	return units
}

// ByOrigin returns the units backed by the file at path.
func (t *Table) ByOrigin(path string) []*Unit {
	path = filepath.Clean(path)
	var out []*Unit
	for _, u := range t.List() {
		if !IsStatic(u.Origin) && filepath.Clean(u.Origin) == path {
			out = append(out, u)
		}
	}
	return out
}

// Origins maps every unit name to its origin.
func (t *Table) Origins() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.units))
	for name, u := range t.units {
		out[name] = u.Origin
	}
	return out
}

// Lookup returns ident from the namespace of unit name.
func (t *Table) Lookup(name, ident string) (object.Entity, error) {
	u, ok := t.Get(name)
	if !ok {
		return nil, &object.NameError{Name: name}
	}
	e, ok := u.Lookup(ident)
	if !ok {
		return nil, &object.NameError{Unit: name, Name: ident}
	}
	return e, nil
}

// Resolve finds the entity named by a dotted "unit.Qualified.Name"
// identifier. The longest unit name prefix wins; the remaining parts walk
// nested type attributes.
func (t *Table) Resolve(qualified string) (object.Entity, error) {
	parts := strings.Split(qualified, ".")
	for i := len(parts) - 1; i >= 1; i-- {
		u, ok := t.Get(strings.Join(parts[:i], "."))
		if !ok {
			continue
		}
		e, ok := u.Lookup(parts[i])
		if !ok {
			return nil, &object.NameError{Unit: u.Name, Name: parts[i]}
		}
		for _, attr := range parts[i+1:] {
			typ, ok := e.(*object.Type)
			if !ok {
				return nil, &object.NameError{Unit: u.Name, Name: qualified}
			}
			if e, ok = typ.Attr(attr); !ok {
				return nil, &object.AttributeError{Type: typ.Name(), Name: attr}
			}
		}
		return e, nil
	}
	return nil, &object.NameError{Name: qualified}
}

// Name derives a unit name from a file path.
func Name(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
