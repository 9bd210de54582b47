package loader

import (
	"errors"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mevdschee/tqreload/pkg/object"
)

// document is the top level of a unit file. Sections are executed in
// field order.
type document struct {
	Doc       string    `yaml:"doc"`
	Imports   yaml.Node `yaml:"imports"`
	Values    yaml.Node `yaml:"values"`
	Funcs     yaml.Node `yaml:"funcs"`
	Types     yaml.Node `yaml:"types"`
	Instances yaml.Node `yaml:"instances"`
	Bound     yaml.Node `yaml:"bound"`
	Init      *funcSpec `yaml:"init"`
}

type funcSpec struct {
	Params   []string       `yaml:"params"`
	Variadic bool           `yaml:"variadic"`
	Defaults []any          `yaml:"defaults"`
	Doc      string         `yaml:"doc"`
	Vars     map[string]any `yaml:"vars"`
	Attrs    map[string]any `yaml:"attrs"`
	Raise    string         `yaml:"raise"`
	Exit     bool           `yaml:"exit"`
	Set      map[string]any `yaml:"set"`
	Incr     string         `yaml:"incr"`
	Call     string         `yaml:"call"`
	Template string         `yaml:"template"`
	Return   yaml.Node      `yaml:"return"`
}

type typeSpec struct {
	Doc        string              `yaml:"doc"`
	Attrs      yaml.Node           `yaml:"attrs"`
	Methods    yaml.Node           `yaml:"methods"`
	Properties map[string]propSpec `yaml:"properties"`
	Types      yaml.Node           `yaml:"types"`
	Frozen     bool                `yaml:"frozen"`
}

type propSpec struct {
	Get *funcSpec `yaml:"get"`
	Set *funcSpec `yaml:"set"`
	Del *funcSpec `yaml:"del"`
}

type instanceSpec struct {
	Type   string         `yaml:"type"`
	Fields map[string]any `yaml:"fields"`
	Args   []any          `yaml:"args"`
}

type boundSpec struct {
	Instance string `yaml:"instance"`
	Method   string `yaml:"method"`
}

// pair is one key of a mapping node, with the line it was written on.
type pair struct {
	Key   string
	Line  int
	Value *yaml.Node
}

var lineRe = regexp.MustCompile(`line (\d+)`)

// parse decodes src into a document, turning every YAML failure into a
// syntax error that points at the offending line.
func parse(file string, src []byte) (*document, error) {
	var doc document
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, syntaxError(file, 0, err)
	}
	return &doc, nil
}

func syntaxError(file string, line int, err error) *object.SyntaxError {
	if line == 0 {
		if m := lineRe.FindStringSubmatch(err.Error()); m != nil {
			line, _ = strconv.Atoi(m[1])
		}
	}
	var se *object.SyntaxError
	if errors.As(err, &se) {
		return se
	}
	return &object.SyntaxError{File: file, Line: line, Msg: err.Error(), Err: err}
}

// pairs lists the entries of a mapping node in document order. An absent
// section yields no entries.
func pairs(file string, n *yaml.Node) ([]pair, error) {
	if n == nil || n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, &object.SyntaxError{File: file, Line: n.Line, Column: n.Column, Msg: "expected a mapping"}
	}
	out := make([]pair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		out = append(out, pair{Key: k.Value, Line: k.Line, Value: n.Content[i+1]})
	}
	return out, nil
}

// decode decodes a section entry, reporting failures as syntax errors.
func decode(file string, p pair, v any) error {
	if err := p.Value.Decode(v); err != nil {
		return syntaxError(file, p.Line, err)
	}
	return nil
}
