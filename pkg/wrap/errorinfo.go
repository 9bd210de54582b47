package wrap

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/mevdschee/tqreload/pkg/object"
)

// ErrorInfo is a captured fault. It is handed back as a value in place of
// a result and is never raised again by the wrapper.
type ErrorInfo struct {
	// Err is the fault as returned or recovered.
	Err error
	// Text is the rendered fault with its frames.
	Text string
	// Time is when the fault was captured.
	Time time.Time
	// Frames lists the call frames at the fault, outermost first. Syntax
	// errors contribute none; a joined fault keeps the frames of its other
	// members.
	Frames []object.Frame
}

func (e *ErrorInfo) Error() string { return e.Err.Error() }

func (e *ErrorInfo) Unwrap() error { return e.Err }

// IsSyntax reports whether the fault is a syntax error in a unit.
func (e *ErrorInfo) IsSyntax() bool {
	var se *object.SyntaxError
	return errors.As(e.Err, &se)
}

// Class names the fault family: "syntax", "panic" or "fault".
func (e *ErrorInfo) Class() string {
	var pe *PanicError
	switch {
	case e.IsSyntax():
		return "syntax"
	case errors.As(e.Err, &pe):
		return "panic"
	}
	return "fault"
}

// NewErrorInfo captures err.
func NewErrorInfo(err error) *ErrorInfo {
	info := &ErrorInfo{Err: err, Time: time.Now(), Frames: framesOf(err)}
	info.Text = render(info)
	return info
}

func framesOf(err error) []object.Frame {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			var frames []object.Frame
			for _, member := range joined.Unwrap() {
				frames = append(frames, framesOf(member)...)
			}
			return frames
		}
	}
	var se *object.SyntaxError
	if errors.As(err, &se) {
		return nil
	}
	var frames []object.Frame
	var ce *object.CallError
	if errors.As(err, &ce) {
		frames = append(frames, ce.Frames...)
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		frames = append(frames, pe.Frames...)
	}
	return frames
}

func render(info *ErrorInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v\n", info.Time.Format("2006-01-02 15:04:05"), info.Err)
	for _, fr := range info.Frames {
		fmt.Fprintf(&b, "    at %s\n", fr)
	}
	var pe *PanicError
	if errors.As(info.Err, &pe) && len(pe.Stack) > 0 {
		b.WriteString("\n")
		b.Write(pe.Stack)
	}
	return b.String()
}

// PanicError is a recovered panic.
type PanicError struct {
	Value  any
	Frames []object.Frame
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// newPanicError must be called from the deferred function that recovered
// the panic, so that the captured stack still shows the panic site.
func newPanicError(v any) *PanicError {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var out []object.Frame
	for {
		fr, more := frames.Next()
		if !strings.HasPrefix(fr.Function, "runtime.") {
			out = append(out, object.Frame{Function: fr.Function, File: fr.File, Line: fr.Line})
		}
		if !more {
			break
		}
	}
	slices.Reverse(out)
	return &PanicError{Value: v, Frames: out, Stack: debug.Stack()}
}
