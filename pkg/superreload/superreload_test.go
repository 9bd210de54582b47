package superreload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mevdschee/tqreload/pkg/loader"
	"github.com/mevdschee/tqreload/pkg/object"
	"github.com/mevdschee/tqreload/pkg/unit"
)

type fixture struct {
	t     *testing.T
	table *unit.Table
	path  string
	unit  *unit.Unit
}

func newFixture(t *testing.T, src string) *fixture {
	t.Helper()
	table := unit.NewTable(nil)
	loader.New().Register(table)
	f := &fixture{t: t, table: table, path: filepath.Join(t.TempDir(), "m.yaml")}
	f.write(src)
	u, err := table.Load(context.Background(), "m", f.path)
	require.NoError(t, err)
	f.unit = u
	return f
}

func (f *fixture) write(src string) {
	f.t.Helper()
	require.NoError(f.t, os.WriteFile(f.path, []byte(src), 0644))
}

func (f *fixture) lookup(name string) object.Entity {
	f.t.Helper()
	e, ok := f.unit.Lookup(name)
	require.True(f.t, ok, "missing %s", name)
	return e
}

func TestReloadPatchesFunction(t *testing.T) {
	fx := newFixture(t, "funcs:\n  f:\n    return: 1\n")
	held := fx.lookup("f").(*object.Func)

	res, err := held.Call()
	require.NoError(t, err)
	assert.Equal(t, 1, res)

	fx.write("funcs:\n  f:\n    return: 2\n")
	tracker := NewTracker()
	require.NoError(t, Reload(context.Background(), fx.table, fx.unit, tracker, nil))

	res, err = held.Call()
	require.NoError(t, err)
	assert.Equal(t, 2, res)
	assert.True(t, tracker.Has(Key{Unit: "m", Name: "f"}))
}

func TestReloadRetargetsInstances(t *testing.T) {
	fx := newFixture(t, `
types:
  C:
    attrs: {attr: 1}
instances:
  c: {type: C}
`)
	oldType := fx.lookup("C").(*object.Type)
	c := fx.lookup("c").(*object.Instance)
	v, err := c.Get("attr")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	fx.write(`
types:
  C:
    attrs: {attr: 2}
    methods:
      extra: {return: 99}
instances:
  c: {type: C}
`)
	require.NoError(t, Reload(context.Background(), fx.table, fx.unit, NewTracker(), nil))

	newType := fx.lookup("C").(*object.Type)
	assert.NotSame(t, oldType, newType)
	assert.Same(t, newType, c.Type())

	v, err = c.Get("attr")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	res, err := c.CallMethod("extra")
	require.NoError(t, err)
	assert.Equal(t, 99, res)

	attr, _ := oldType.Attr("attr")
	assert.Equal(t, object.Value{V: 2}, attr)
	runtime.KeepAlive(oldType)
}

func generation(n int) string {
	return fmt.Sprintf(`
funcs:
  f:
    return: %[1]d
types:
  C:
    attrs: {attr: %[1]d}
    methods:
      m: {return: %[1]d}
    properties:
      p:
        get: {return: %[1]d}
instances:
  c: {type: C}
`, n)
}

func TestReloadConvergesAcrossGenerations(t *testing.T) {
	fx := newFixture(t, generation(0))
	f0 := fx.lookup("f").(*object.Func)
	c0 := fx.lookup("c").(*object.Instance)
	type0 := fx.lookup("C").(*object.Type)
	tracker := NewTracker()

	for gen := 1; gen <= 4; gen++ {
		fx.write(generation(gen))
		require.NoError(t, Reload(context.Background(), fx.table, fx.unit, tracker, nil), "generation %d", gen)

		res, err := f0.Call()
		require.NoError(t, err)
		assert.Equal(t, gen, res, "f after generation %d", gen)

		current := fx.lookup("C").(*object.Type)
		assert.Same(t, current, c0.Type(), "c type after generation %d", gen)

		v, err := c0.Get("attr")
		require.NoError(t, err)
		assert.Equal(t, gen, v, "c.attr after generation %d", gen)
		res, err = c0.CallMethod("m")
		require.NoError(t, err)
		assert.Equal(t, gen, res, "c.m after generation %d", gen)
		v, err = c0.Get("p")
		require.NoError(t, err)
		assert.Equal(t, gen, v, "c.p after generation %d", gen)

		fresh, err := type0.New(nil)
		require.NoError(t, err)
		v, err = fresh.Get("attr")
		require.NoError(t, err)
		assert.Equal(t, gen, v, "old type attr after generation %d", gen)
		res, err = fresh.CallMethod("m")
		require.NoError(t, err)
		assert.Equal(t, gen, res, "old type method after generation %d", gen)
	}
	runtime.KeepAlive(type0)
}

func TestReloadRollsBackOnFailure(t *testing.T) {
	fx := newFixture(t, "values:\n  a: 1\nfuncs:\n  f:\n    return: 1\n")
	held := fx.lookup("f").(*object.Func)
	before := fx.unit.Namespace().Items()

	fx.write("values:\n  a: 2\n  b: 3\nfuncs:\n  f:\n    return: 2\ninit:\n  raise: broken\n")
	err := Reload(context.Background(), fx.table, fx.unit, NewTracker(), nil)
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "m", re.Unit)
	var raised *object.RaisedError
	require.ErrorAs(t, err, &raised)

	assert.Equal(t, before, fx.unit.Namespace().Items())
	res, err := held.Call()
	require.NoError(t, err)
	assert.Equal(t, 1, res)
}

func TestReloadSyntaxErrorKeepsNamespace(t *testing.T) {
	fx := newFixture(t, "values:\n  a: 1\n")
	before := fx.unit.Namespace().Items()

	fx.write("values:\n\ta: 2\n")
	err := Reload(context.Background(), fx.table, fx.unit, NewTracker(), nil)
	var se *object.SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, before, fx.unit.Namespace().Items())
}

func TestReloadExposesNewNames(t *testing.T) {
	fx := newFixture(t, "funcs:\n  f:\n    return: 1\n")
	tracker := NewTracker()

	fx.write("funcs:\n  f:\n    return: 1\n  g:\n    return: 2\nvalues:\n  v: 3\n")
	exposed := map[string]object.Entity{}
	sink := SinkFunc(func(name string, e object.Entity) { exposed[name] = e })
	require.NoError(t, Reload(context.Background(), fx.table, fx.unit, tracker, sink))

	require.Contains(t, exposed, "g")
	assert.NotContains(t, exposed, "f")
	assert.NotContains(t, exposed, "v")
	assert.NotContains(t, exposed, "__name__")
	assert.True(t, tracker.Has(Key{Unit: "m", Name: "g"}))
}

func TestTrackerDedupesAndPrunes(t *testing.T) {
	tracker := NewTracker()
	key := Key{Unit: "m", Name: "f"}
	f := object.NewFunc("m", "f", nil)

	assert.True(t, tracker.Track(key, f))
	assert.True(t, tracker.Track(key, f))
	assert.Len(t, tracker.Live(key), 1)
	assert.False(t, tracker.Track(key, object.Value{V: 1}))

	func() {
		tracker.Track(Key{Unit: "m", Name: "tmp"}, object.NewFunc("m", "tmp", nil))
	}()
	runtime.GC()
	runtime.GC()
	assert.Equal(t, 1, tracker.Prune())
	assert.False(t, tracker.Has(Key{Unit: "m", Name: "tmp"}))
	runtime.KeepAlive(f)
}

func TestReserved(t *testing.T) {
	assert.True(t, Reserved("__name__"))
	assert.False(t, Reserved("name"))
}
