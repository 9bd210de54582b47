// Package loader executes YAML unit files.
//
// A unit file declares values, functions, types, instances and bound methods.
// Function bodies are small: they may raise, request exit, update receiver
// fields, call another function of the unit, render a tqtemplate or return a
// literal. Rendered output is decoded as a YAML scalar, so "2" yields an int.
//
//	doc: Counter example
//	values:
//	  step: 1
//	funcs:
//	  hello:
//	    params: [name]
//	    defaults: [world]
//	    template: "hello {{ name }}"
//	types:
//	  Counter:
//	    attrs: {start: 0}
//	    methods:
//	      tick: {incr: count}
//	instances:
//	  counter: {type: Counter, fields: {count: 0}}
package loader

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mevdschee/tqreload/pkg/unit"
)

// Extensions handled by the loader.
var Extensions = []string{".yaml", ".yml"}

// Loader executes YAML unit files. It implements unit.Loader.
type Loader struct{}

// New creates a YAML unit loader.
func New() *Loader {
	return &Loader{}
}

// Register installs the loader on t for every handled extension.
func (l *Loader) Register(t *unit.Table) {
	for _, ext := range Extensions {
		t.Handle(ext, l)
	}
}

// program is a fully decoded unit file, ready to run.
type program struct {
	file      string
	doc       string
	imports   []named[string]
	values    []named[any]
	funcs     []named[*funcSpec]
	types     []named[*typeProgram]
	instances []named[*instanceSpec]
	bound     []named[*boundSpec]
	init      *funcSpec
}

type named[T any] struct {
	Name string
	Line int
	Spec T
}

type typeProgram struct {
	spec    *typeSpec
	attrs   []named[any]
	methods []named[*funcSpec]
	types   []named[*typeProgram]
}

// Exec implements unit.Loader. Decoding happens before the namespace is
// touched, so syntax errors never leave partial state; faults raised while
// running (unknown names, a failing init) do.
func (l *Loader) Exec(ctx context.Context, t *unit.Table, u *unit.Unit) error {
	src, err := os.ReadFile(u.Origin)
	if err != nil {
		return fmt.Errorf("failed to read unit source: %w", err)
	}
	prog, err := compile(u.Origin, src)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return (&runner{table: t, unit: u, prog: prog}).run()
}

func compile(file string, src []byte) (*program, error) {
	doc, err := parse(file, src)
	if err != nil {
		return nil, err
	}
	prog := &program{file: file, doc: doc.Doc, init: doc.Init}

	if prog.imports, err = section[string](file, &doc.Imports); err != nil {
		return nil, err
	}
	if prog.values, err = section[any](file, &doc.Values); err != nil {
		return nil, err
	}
	if prog.funcs, err = section[*funcSpec](file, &doc.Funcs); err != nil {
		return nil, err
	}
	if prog.types, err = compileTypes(file, &doc.Types); err != nil {
		return nil, err
	}
	if prog.instances, err = section[*instanceSpec](file, &doc.Instances); err != nil {
		return nil, err
	}
	if prog.bound, err = section[*boundSpec](file, &doc.Bound); err != nil {
		return nil, err
	}
	return prog, nil
}

func section[T any](file string, n *yaml.Node) ([]named[T], error) {
	ps, err := pairs(file, n)
	if err != nil {
		return nil, err
	}
	out := make([]named[T], 0, len(ps))
	for _, p := range ps {
		var v T
		if err := decode(file, p, &v); err != nil {
			return nil, err
		}
		out = append(out, named[T]{Name: p.Key, Line: p.Line, Spec: v})
	}
	return out, nil
}

func compileTypes(file string, n *yaml.Node) ([]named[*typeProgram], error) {
	specs, err := section[*typeSpec](file, n)
	if err != nil {
		return nil, err
	}
	out := make([]named[*typeProgram], 0, len(specs))
	for _, s := range specs {
		tp := &typeProgram{spec: s.Spec}
		if s.Spec == nil {
			tp.spec = &typeSpec{}
		}
		if tp.attrs, err = section[any](file, &tp.spec.Attrs); err != nil {
			return nil, err
		}
		if tp.methods, err = section[*funcSpec](file, &tp.spec.Methods); err != nil {
			return nil, err
		}
		if tp.types, err = compileTypes(file, &tp.spec.Types); err != nil {
			return nil, err
		}
		out = append(out, named[*typeProgram]{Name: s.Name, Line: s.Line, Spec: tp})
	}
	return out, nil
}
