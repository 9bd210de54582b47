package object

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constFunc(unit, name string, v any) *Func {
	return NewFunc(unit, name, &FuncBody{Code: func(*Call) (any, error) { return v, nil }})
}

func TestFuncDefaults(t *testing.T) {
	f := NewFunc("m", "greet", &FuncBody{
		Params:   []string{"greeting", "name"},
		Defaults: []any{"world"},
		Code: func(c *Call) (any, error) {
			g, _ := c.Arg("greeting")
			n, _ := c.Arg("name")
			return g.(string) + " " + n.(string), nil
		},
	})

	res, err := f.Call("hello")
	require.NoError(t, err)
	assert.Equal(t, "hello world", res)

	res, err = f.Call("bye", "moon")
	require.NoError(t, err)
	assert.Equal(t, "bye moon", res)

	_, err = f.Call()
	var ae *ArgumentError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Msg, "greeting")

	_, err = f.Call("a", "b", "c")
	require.ErrorAs(t, err, &ae)
}

func TestFuncVariadic(t *testing.T) {
	f := NewFunc("m", "count", &FuncBody{
		Params:   []string{"first"},
		Variadic: true,
		Code:     func(c *Call) (any, error) { return len(c.Args), nil },
	})
	res, err := f.Call(1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res)
}

func TestFuncSetBodyKeepsIdentity(t *testing.T) {
	f := constFunc("m", "f", 1)
	holder := f

	res, err := holder.Call()
	require.NoError(t, err)
	assert.Equal(t, 1, res)

	f.SetBody(constFunc("m", "f", 2).Body())
	res, err = holder.Call()
	require.NoError(t, err)
	assert.Equal(t, 2, res)

	f.SetBody(nil)
	res, _ = holder.Call()
	assert.Equal(t, 2, res)
}

func TestFuncClosureAndGlobals(t *testing.T) {
	ns := NewNamespace()
	ns.Set("base", Value{V: 10})
	cell := NewCell(5)
	f := NewFunc("m", "add", &FuncBody{
		Closure: []*Cell{cell},
		Globals: ns,
		Code: func(c *Call) (any, error) {
			g, err := c.Global("base")
			if err != nil {
				return nil, err
			}
			return Unwrap(g).(int) + c.Cell(0).Get().(int), nil
		},
	})
	res, err := f.Call()
	require.NoError(t, err)
	assert.Equal(t, 15, res)

	cell.Set(7)
	res, err = f.Call()
	require.NoError(t, err)
	assert.Equal(t, 17, res)

	ns.Delete("base")
	_, err = f.Call()
	var ne *NameError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "base", ne.Name)
}

func TestFuncAttrs(t *testing.T) {
	f := NewFunc("m", "f", &FuncBody{Doc: "does f"})
	assert.Equal(t, "does f", f.Doc())

	old := f.Body()
	f.SetAttr("cached", true)
	v, ok := f.Attr("cached")
	require.True(t, ok)
	assert.Equal(t, true, v)
	assert.Nil(t, old.Attrs)
}

func TestCallErrorFrames(t *testing.T) {
	boom := errors.New("boom")
	inner := NewFunc("m", "inner", &FuncBody{
		File: "m.yaml",
		Line: 7,
		Code: func(*Call) (any, error) { return nil, boom },
	})
	outer := NewFunc("m", "outer", &FuncBody{
		File: "m.yaml",
		Line: 3,
		Code: func(*Call) (any, error) { return inner.Call() },
	})

	_, err := outer.Call()
	require.ErrorIs(t, err, boom)
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Frames, 2)
	assert.Equal(t, "outer", ce.Frames[0].Function)
	assert.Equal(t, "inner", ce.Frames[1].Function)
	assert.Equal(t, "m.inner (m.yaml:7)", ce.Frames[1].String())
}

func TestExitPassesThrough(t *testing.T) {
	f := NewFunc("m", "quit", &FuncBody{Code: func(*Call) (any, error) { return nil, ErrExit }})
	_, err := f.Call()
	assert.Same(t, ErrExit, err)
}

func TestTypeNewRunsInit(t *testing.T) {
	initFn := NewFunc("m", "C.init", &FuncBody{
		Params: []string{"self", "n"},
		Code: func(c *Call) (any, error) {
			self, _ := c.Self()
			return nil, self.Set("n", c.Args[1])
		},
	})
	typ := NewType("m", "C", map[string]Entity{InitMethod: initFn, "attr": Value{V: 1}})

	inst, err := typ.New(nil, 42)
	require.NoError(t, err)
	v, err := inst.Get("n")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = inst.Get("attr")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = inst.Get("missing")
	var ae *AttributeError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "m", inst.Unit())
}

func TestInstanceMethodsAndProperties(t *testing.T) {
	getter := NewFunc("m", "C.double.get", &FuncBody{
		Params: []string{"self"},
		Code: func(c *Call) (any, error) {
			self, _ := c.Self()
			v, _ := self.Field("n")
			return v.(int) * 2, nil
		},
	})
	setter := NewFunc("m", "C.double.set", &FuncBody{
		Params: []string{"self", "value"},
		Code: func(c *Call) (any, error) {
			self, _ := c.Self()
			return nil, self.Set("n", c.Args[1].(int)/2)
		},
	})
	method := NewFunc("m", "C.name", &FuncBody{
		Params: []string{"self"},
		Code:   func(*Call) (any, error) { return "c", nil },
	})
	typ := NewType("m", "C", map[string]Entity{
		"double": NewProperty("m", getter, setter, nil),
		"name":   method,
	})
	inst, err := typ.New(map[string]any{"n": 3})
	require.NoError(t, err)

	v, err := inst.Get("double")
	require.NoError(t, err)
	assert.Equal(t, 6, v)

	require.NoError(t, inst.Set("double", 10))
	v, _ = inst.Field("n")
	assert.Equal(t, 5, v)

	err = inst.Delete("double")
	var ae *AttributeError
	require.ErrorAs(t, err, &ae)
	assert.True(t, ae.ReadOnly)

	res, err := inst.CallMethod("name")
	require.NoError(t, err)
	assert.Equal(t, "c", res)

	m, err := inst.Get("name")
	require.NoError(t, err)
	require.IsType(t, &Method{}, m)
	assert.Same(t, inst, m.(*Method).Self)
}

func TestFrozenType(t *testing.T) {
	typ := NewType("m", "C", map[string]Entity{"a": Value{V: 1}})
	typ.Freeze()
	assert.True(t, typ.Frozen())

	var ae *AttributeError
	require.ErrorAs(t, typ.SetAttr("a", Value{V: 2}), &ae)
	assert.True(t, ae.ReadOnly)
	require.ErrorAs(t, typ.DelAttr("a"), &ae)

	a, _ := typ.Attr("a")
	assert.Equal(t, Value{V: 1}, a)
}

func TestTypeRetarget(t *testing.T) {
	oldType := NewType("m", "C", nil)
	newType := NewType("m", "C", nil)

	a, err := oldType.New(nil)
	require.NoError(t, err)
	b, err := oldType.New(nil)
	require.NoError(t, err)

	assert.Len(t, oldType.Instances(), 2)
	assert.Equal(t, 2, oldType.Retarget(newType))
	assert.Same(t, newType, a.Type())
	assert.Same(t, newType, b.Type())
	assert.Empty(t, oldType.Instances())
	assert.Len(t, newType.Instances(), 2)

	assert.Equal(t, 0, newType.Retarget(newType))
	assert.Equal(t, 0, newType.Retarget(nil))
	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
}

func TestTypeInstancesDropsCollected(t *testing.T) {
	typ := NewType("m", "C", nil)
	func() {
		_, err := typ.New(nil)
		require.NoError(t, err)
	}()
	runtime.GC()
	runtime.GC()
	assert.Empty(t, typ.Instances())
}

func TestNamespaceSnapshotRestore(t *testing.T) {
	ns := NewNamespace()
	ns.Set("a", Value{V: 1})
	ns.Set("b", Value{V: 2})
	snap := ns.Snapshot()

	ns.Set("a", Value{V: 10})
	ns.Set("c", Value{V: 3})
	ns.Delete("b")
	assert.Equal(t, []string{"a", "c"}, ns.Names())

	ns.Restore(snap)
	assert.Equal(t, []string{"a", "b"}, ns.Names())
	a, _ := ns.Get("a")
	assert.Equal(t, Value{V: 1}, a)
	_, ok := ns.Get("c")
	assert.False(t, ok)
	assert.Equal(t, 2, ns.Len())
}

func TestWrapUnwrap(t *testing.T) {
	f := constFunc("m", "f", nil)
	assert.Same(t, f, Wrap(f))
	assert.Equal(t, Value{V: 3}, Wrap(3))
	assert.Equal(t, 3, Unwrap(Value{V: 3}))
	assert.Equal(t, "m", OwnerOf(f))
	assert.Equal(t, "", OwnerOf(Value{V: 1}))
	assert.Equal(t, "type", KindType.String())
}
