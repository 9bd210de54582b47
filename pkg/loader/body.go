package loader

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/mevdschee/tqtemplate"
	"gopkg.in/yaml.v3"

	"github.com/mevdschee/tqreload/pkg/object"
)

// renderer renders one template source. tqtemplate resolves templates by
// name through the loader callback, so every renderer owns a private
// template set that only knows its own source.
type renderer struct {
	mu   sync.Mutex
	name string
	tmpl *tqtemplate.Template
}

func newRenderer(name, src string) *renderer {
	loader := func(string) (string, error) {
		return src, nil
	}
	return &renderer{name: name, tmpl: tqtemplate.NewTemplateWithLoader(loader)}
}

func (r *renderer) render(data map[string]interface{}) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, err := r.tmpl.RenderFile(r.name, data)
	if err != nil {
		return "", fmt.Errorf("template %s: %w", r.name, err)
	}
	return out, nil
}

// body is the compiled behaviour of one function spec.
type body struct {
	name    string
	spec    *funcSpec
	vars    []string
	ret     any
	hasRet  bool
	tmpl    *renderer
	setKeys []string
	setTmpl map[string]*renderer
}

func newBody(name string, spec *funcSpec, vars []string) *body {
	b := &body{
		name:    name,
		spec:    spec,
		vars:    vars,
		setKeys: slices.Sorted(maps.Keys(spec.Set)),
		setTmpl: make(map[string]*renderer),
	}
	if spec.Return.Kind != 0 {
		var v any
		if err := spec.Return.Decode(&v); err == nil {
			b.ret, b.hasRet = v, true
		}
	}
	if spec.Template != "" {
		b.tmpl = newRenderer(name, spec.Template)
	}
	for k, v := range spec.Set {
		if s, ok := v.(string); ok && strings.Contains(s, "{{") {
			b.setTmpl[k] = newRenderer(name+"."+k, s)
		}
	}
	return b
}

func (b *body) code(c *object.Call) (any, error) {
	if b.spec.Raise != "" {
		return nil, &object.RaisedError{Func: b.name, Msg: b.spec.Raise}
	}
	if b.spec.Exit {
		return nil, object.ErrExit
	}

	var result any
	if len(b.setKeys) > 0 || b.spec.Incr != "" {
		self, ok := c.Self()
		if !ok {
			return nil, &object.ArgumentError{Func: b.name, Msg: "needs a receiver"}
		}
		for _, k := range b.setKeys {
			v := b.spec.Set[k]
			if r, ok := b.setTmpl[k]; ok {
				out, err := r.render(b.data(c))
				if err != nil {
					return nil, err
				}
				v = decodeScalar(out)
			}
			if err := self.Set(k, v); err != nil {
				return nil, err
			}
			result = v
		}
		if b.spec.Incr != "" {
			cur, _ := self.Get(b.spec.Incr)
			n, err := toInt(cur)
			if err != nil {
				return nil, fmt.Errorf("%s: cannot increment %s: %w", b.name, b.spec.Incr, err)
			}
			if err := self.Set(b.spec.Incr, n+1); err != nil {
				return nil, err
			}
			result = n + 1
		}
	}

	if b.spec.Call != "" {
		res, err := b.call(c)
		if err != nil {
			return nil, err
		}
		result = res
	}
	if b.tmpl != nil {
		out, err := b.tmpl.render(b.data(c))
		if err != nil {
			return nil, err
		}
		result = decodeScalar(out)
	}
	if b.hasRet {
		result = b.ret
	}
	return result, nil
}

// call forwards the arguments to another callable: "self.name" targets a
// method of the receiver, anything else a global of the unit.
func (b *body) call(c *object.Call) (any, error) {
	if rest, ok := strings.CutPrefix(b.spec.Call, "self."); ok {
		self, ok := c.Self()
		if !ok {
			return nil, &object.ArgumentError{Func: b.name, Msg: "needs a receiver"}
		}
		return self.CallMethod(rest, c.Args[1:]...)
	}
	e, err := c.Global(b.spec.Call)
	if err != nil {
		return nil, err
	}
	switch callee := e.(type) {
	case *object.Func:
		return callee.Call(c.Args...)
	case *object.Method:
		return callee.Call(c.Args...)
	case *object.Type:
		return callee.New(nil, c.Args...)
	}
	return nil, &object.ArgumentError{Func: b.name, Msg: fmt.Sprintf("%s is not callable", b.spec.Call)}
}

// data builds the template context: unit values, then closure variables,
// then parameters, later entries shadowing earlier ones.
func (b *body) data(c *object.Call) map[string]interface{} {
	data := make(map[string]interface{})
	if c.Body.Globals != nil {
		for _, it := range c.Body.Globals.Items() {
			if v, ok := it.Entity.(object.Value); ok {
				data[it.Name] = v.V
			}
		}
	}
	for i, name := range b.vars {
		if cell := c.Cell(i); cell != nil {
			data[name] = cell.Get()
		}
	}
	args := make([]interface{}, len(c.Args))
	for i, arg := range c.Args {
		args[i] = templateValue(arg)
		if i < len(c.Body.Params) {
			data[c.Body.Params[i]] = args[i]
		}
	}
	data["args"] = args
	return data
}

func templateValue(v any) any {
	switch x := v.(type) {
	case *object.Instance:
		fields := x.Fields()
		fields["__type__"] = x.Type().Name()
		return fields
	case object.Value:
		return x.V
	}
	return v
}

// decodeScalar turns rendered output into a typed scalar. Anything that is
// not a plain YAML scalar stays a string.
func decodeScalar(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	switch v.(type) {
	case map[string]any, []any:
		return s
	}
	return v
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("not a number: %v", v)
}
