package object

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExit requests termination of the surrounding loop. It is never
// captured as a fault.
var ErrExit = errors.New("exit requested")

// SyntaxError means a unit's source could not be parsed.
type SyntaxError struct {
	File   string
	Line   int
	Column int
	Msg    string
	Err    error
}

func (e *SyntaxError) Error() string {
	var b strings.Builder
	b.WriteString(e.File)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d", e.Line)
		if e.Column > 0 {
			fmt.Fprintf(&b, ":%d", e.Column)
		}
	}
	b.WriteString(": syntax error: ")
	b.WriteString(e.Msg)
	return b.String()
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// NameError means an identifier could not be resolved.
type NameError struct {
	Unit string
	Name string
}

func (e *NameError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("name %q is not defined", e.Name)
	}
	return fmt.Sprintf("name %q is not defined in unit %q", e.Name, e.Unit)
}

// AttributeError means an attribute is missing or cannot be written.
type AttributeError struct {
	Type     string
	Name     string
	ReadOnly bool
}

func (e *AttributeError) Error() string {
	if e.ReadOnly {
		return fmt.Sprintf("attribute %q of %s is read-only", e.Name, e.Type)
	}
	return fmt.Sprintf("%s has no attribute %q", e.Type, e.Name)
}

// ArgumentError means a call did not match the function's parameters.
type ArgumentError struct {
	Func string
	Msg  string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Func, e.Msg)
}

// RaisedError is a fault raised explicitly by unit code.
type RaisedError struct {
	Func string
	Msg  string
}

func (e *RaisedError) Error() string {
	return fmt.Sprintf("%s raised: %s", e.Func, e.Msg)
}

// Frame is one unit-level call frame.
type Frame struct {
	Unit     string
	Function string
	File     string
	Line     int
}

func (f Frame) String() string {
	if f.Unit == "" {
		return fmt.Sprintf("%s (%s:%d)", f.Function, f.File, f.Line)
	}
	if f.Line > 0 {
		return fmt.Sprintf("%s.%s (%s:%d)", f.Unit, f.Function, f.File, f.Line)
	}
	return fmt.Sprintf("%s.%s (%s)", f.Unit, f.Function, f.File)
}

// CallError carries a fault together with the unit frames it passed
// through, outermost first.
type CallError struct {
	Err    error
	Frames []Frame
}

func (e *CallError) Error() string { return e.Err.Error() }

func (e *CallError) Unwrap() error { return e.Err }
