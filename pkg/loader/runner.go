package loader

import (
	"fmt"
	"maps"
	"slices"

	"github.com/mevdschee/tqreload/pkg/object"
	"github.com/mevdschee/tqreload/pkg/unit"
)

// runner writes one program into a unit's live namespace.
type runner struct {
	table *unit.Table
	unit  *unit.Unit
	prog  *program
}

func (r *runner) run() error {
	ns := r.unit.Namespace()
	ns.Set("__name__", object.Value{V: r.unit.Name})
	ns.Set("__file__", object.Value{V: r.unit.Origin})
	ns.Set("__doc__", object.Value{V: r.prog.doc})

	for _, imp := range r.prog.imports {
		e, err := r.table.Resolve(imp.Spec)
		if err != nil {
			return r.fault(imp.Line, err)
		}
		ns.Set(imp.Name, e)
	}
	for _, v := range r.prog.values {
		ns.Set(v.Name, object.Value{V: v.Spec})
	}
	for _, f := range r.prog.funcs {
		ns.Set(f.Name, r.function(f.Name, f.Line, f.Spec, false))
	}
	for _, t := range r.prog.types {
		typ, err := r.typ(t.Name, t.Spec)
		if err != nil {
			return r.fault(t.Line, err)
		}
		ns.Set(t.Name, typ)
	}
	for _, in := range r.prog.instances {
		inst, err := r.instance(in.Spec)
		if err != nil {
			return r.fault(in.Line, err)
		}
		ns.Set(in.Name, inst)
	}
	for _, b := range r.prog.bound {
		m, err := r.method(b.Spec)
		if err != nil {
			return r.fault(b.Line, err)
		}
		ns.Set(b.Name, m)
	}
	if r.prog.init != nil {
		initFn := r.function("init", 0, r.prog.init, false)
		if _, err := initFn.Call(); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) fault(line int, err error) error {
	return &object.CallError{Err: err, Frames: []object.Frame{{
		Unit:     r.unit.Name,
		Function: "<unit>",
		File:     r.prog.file,
		Line:     line,
	}}}
}

// function builds a Func from its spec. Methods get "self" prepended to
// their parameters.
func (r *runner) function(name string, line int, spec *funcSpec, method bool) *object.Func {
	if spec == nil {
		spec = &funcSpec{}
	}
	params := slices.Clone(spec.Params)
	if method && (len(params) == 0 || params[0] != "self") {
		params = append([]string{"self"}, params...)
	}
	varNames := slices.Sorted(maps.Keys(spec.Vars))
	cells := make([]*object.Cell, len(varNames))
	for i, v := range varNames {
		cells[i] = object.NewCell(spec.Vars[v])
	}
	body := &object.FuncBody{
		Params:   params,
		Variadic: spec.Variadic,
		Defaults: slices.Clone(spec.Defaults),
		Closure:  cells,
		Globals:  r.unit.Namespace(),
		Doc:      spec.Doc,
		Attrs:    maps.Clone(spec.Attrs),
		File:     r.prog.file,
		Line:     line,
	}
	body.Code = newBody(r.unit.Name+"."+name, spec, varNames).code
	return object.NewFunc(r.unit.Name, name, body)
}

func (r *runner) typ(name string, tp *typeProgram) (*object.Type, error) {
	attrs := make(map[string]object.Entity)
	for _, a := range tp.attrs {
		attrs[a.Name] = object.Value{V: a.Spec}
	}
	for _, m := range tp.methods {
		attrs[m.Name] = r.function(name+"."+m.Name, m.Line, m.Spec, true)
	}
	for _, pname := range slices.Sorted(maps.Keys(tp.spec.Properties)) {
		p := tp.spec.Properties[pname]
		prop := object.NewProperty(r.unit.Name, nil, nil, nil)
		if p.Get != nil {
			prop.Get = r.function(name+"."+pname+".get", 0, p.Get, true)
		}
		if p.Set != nil {
			setter := *p.Set
			if len(setter.Params) == 0 {
				setter.Params = []string{"value"}
			}
			prop.Set = r.function(name+"."+pname+".set", 0, &setter, true)
		}
		if p.Del != nil {
			prop.Del = r.function(name+"."+pname+".del", 0, p.Del, true)
		}
		attrs[pname] = prop
	}
	for _, nested := range tp.types {
		inner, err := r.typ(name+"."+nested.Name, nested.Spec)
		if err != nil {
			return nil, err
		}
		attrs[nested.Name] = inner
	}
	if tp.spec.Doc != "" {
		attrs["__doc__"] = object.Value{V: tp.spec.Doc}
	}
	typ := object.NewType(r.unit.Name, name, attrs)
	if tp.spec.Frozen {
		typ.Freeze()
	}
	return typ, nil
}

func (r *runner) instance(spec *instanceSpec) (*object.Instance, error) {
	if spec == nil || spec.Type == "" {
		return nil, fmt.Errorf("instance needs a type")
	}
	e, err := r.lookup(spec.Type)
	if err != nil {
		return nil, err
	}
	typ, ok := e.(*object.Type)
	if !ok {
		return nil, fmt.Errorf("%s is a %s, not a type", spec.Type, e.Kind())
	}
	return typ.New(spec.Fields, spec.Args...)
}

func (r *runner) method(spec *boundSpec) (*object.Method, error) {
	if spec == nil {
		return nil, fmt.Errorf("bound method needs an instance")
	}
	e, err := r.lookup(spec.Instance)
	if err != nil {
		return nil, err
	}
	inst, ok := e.(*object.Instance)
	if !ok {
		return nil, fmt.Errorf("%s is a %s, not an instance", spec.Instance, e.Kind())
	}
	v, err := inst.Get(spec.Method)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*object.Method)
	if !ok {
		return nil, &object.AttributeError{Type: inst.Type().Name(), Name: spec.Method}
	}
	return m, nil
}

// lookup resolves a local identifier first, then a dotted unit path.
func (r *runner) lookup(name string) (object.Entity, error) {
	if e, ok := r.unit.Lookup(name); ok {
		return e, nil
	}
	return r.table.Resolve(name)
}
