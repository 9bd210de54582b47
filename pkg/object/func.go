package object

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
)

// Code is the executable part of a function.
type Code func(c *Call) (any, error)

// Cell is a captured closure variable.
type Cell struct {
	mu sync.RWMutex
	v  any
}

// NewCell returns a cell holding v.
func NewCell(v any) *Cell {
	return &Cell{v: v}
}

// Get returns the cell's value.
func (c *Cell) Get() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// Set replaces the cell's value.
func (c *Cell) Set(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = v
}

// FuncBody is everything a reload may replace on a function.
type FuncBody struct {
	Code     Code
	Params   []string
	Variadic bool
	Defaults []any
	Closure  []*Cell
	Globals  *Namespace
	Doc      string
	Attrs    map[string]any
	File     string
	Line     int
}

// Func is a stable handle to a function whose body can be swapped.
type Func struct {
	name string
	unit string
	body atomic.Pointer[FuncBody]
}

// NewFunc creates a function named name owned by unit.
func NewFunc(unit, name string, body *FuncBody) *Func {
	f := &Func{name: name, unit: unit}
	if body == nil {
		body = &FuncBody{}
	}
	f.body.Store(body)
	return f
}

// Kind implements Entity.
func (f *Func) Kind() Kind { return KindFunc }

// Name returns the function's name.
func (f *Func) Name() string { return f.name }

// Unit returns the unit that defined the function.
func (f *Func) Unit() string { return f.unit }

// Body returns the current body. Callers must treat it as immutable.
func (f *Func) Body() *FuncBody { return f.body.Load() }

// SetBody replaces the body in place. Concurrent callers see either the old
// or the new body, never a mix.
func (f *Func) SetBody(b *FuncBody) {
	if b == nil {
		return
	}
	f.body.Store(b)
}

// Doc returns the function's documentation string.
func (f *Func) Doc() string { return f.body.Load().Doc }

// Attr returns an attached attribute.
func (f *Func) Attr(name string) (any, bool) {
	v, ok := f.body.Load().Attrs[name]
	return v, ok
}

// SetAttr attaches an attribute. The body is copied so that readers of the
// previous body are unaffected.
func (f *Func) SetAttr(name string, v any) {
	for {
		old := f.body.Load()
		next := *old
		next.Attrs = maps.Clone(old.Attrs)
		if next.Attrs == nil {
			next.Attrs = make(map[string]any)
		}
		next.Attrs[name] = v
		if f.body.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Call invokes the current body with args, filling missing trailing
// arguments from the defaults.
func (f *Func) Call(args ...any) (any, error) {
	body := f.body.Load()
	if body.Code == nil {
		return nil, f.frame(body, &ArgumentError{Func: f.qualified(), Msg: "function has no body"})
	}
	bound, err := body.bind(f.qualified(), args)
	if err != nil {
		return nil, f.frame(body, err)
	}
	res, err := body.Code(&Call{Func: f, Body: body, Args: bound})
	if err != nil {
		return nil, f.frame(body, err)
	}
	return res, nil
}

func (f *Func) qualified() string {
	if f.unit == "" {
		return f.name
	}
	return f.unit + "." + f.name
}

// frame records this function in the error's frame list. Termination
// requests pass through untouched.
func (f *Func) frame(body *FuncBody, err error) error {
	if errors.Is(err, ErrExit) {
		return err
	}
	fr := Frame{Unit: f.unit, Function: f.name, File: body.File, Line: body.Line}
	var ce *CallError
	if errors.As(err, &ce) {
		frames := make([]Frame, 0, len(ce.Frames)+1)
		frames = append(frames, fr)
		frames = append(frames, ce.Frames...)
		return &CallError{Err: ce.Err, Frames: frames}
	}
	return &CallError{Err: err, Frames: []Frame{fr}}
}

func (b *FuncBody) bind(name string, args []any) ([]any, error) {
	n := len(b.Params)
	if len(args) > n {
		if b.Variadic {
			return args, nil
		}
		return nil, &ArgumentError{Func: name, Msg: fmt.Sprintf("takes %d arguments but %d were given", n, len(args))}
	}
	if len(args) == n {
		return args, nil
	}
	bound := make([]any, n)
	copy(bound, args)
	first := n - len(b.Defaults)
	for i := len(args); i < n; i++ {
		if i < first {
			return nil, &ArgumentError{Func: name, Msg: fmt.Sprintf("missing argument %q", b.Params[i])}
		}
		bound[i] = b.Defaults[i-first]
	}
	return bound, nil
}

// Call is the activation record handed to Code.
type Call struct {
	Func *Func
	Body *FuncBody
	Args []any
}

// Arg returns the argument bound to the named parameter.
func (c *Call) Arg(name string) (any, bool) {
	for i, p := range c.Body.Params {
		if p == name && i < len(c.Args) {
			return c.Args[i], true
		}
	}
	return nil, false
}

// Self returns the receiver when the function was invoked as a method.
func (c *Call) Self() (*Instance, bool) {
	if len(c.Args) == 0 {
		return nil, false
	}
	inst, ok := c.Args[0].(*Instance)
	return inst, ok
}

// Cell returns the i-th closure cell, or nil.
func (c *Call) Cell(i int) *Cell {
	if i < 0 || i >= len(c.Body.Closure) {
		return nil
	}
	return c.Body.Closure[i]
}

// Global resolves name in the function's globals.
func (c *Call) Global(name string) (Entity, error) {
	if c.Body.Globals != nil {
		if e, ok := c.Body.Globals.Get(name); ok {
			return e, nil
		}
	}
	return nil, &NameError{Unit: c.Func.unit, Name: name}
}
