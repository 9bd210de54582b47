// Package wrap runs a callable under a reloader: every call first reloads
// changed units, then invokes the callable, and turns faults into values.
package wrap

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/mevdschee/tqreload/pkg/metrics"
	"github.com/mevdschee/tqreload/pkg/object"
	"github.com/mevdschee/tqreload/pkg/reloader"
)

// DefaultBackoff is the pause between attempts while a fault is cached.
const DefaultBackoff = 100 * time.Millisecond

// Callable is satisfied by *object.Func and *object.Method.
type Callable interface {
	Call(args ...any) (any, error)
}

// CallableFunc adapts a Go function to Callable.
type CallableFunc func(args ...any) (any, error)

// Call implements Callable.
func (f CallableFunc) Call(args ...any) (any, error) { return f(args...) }

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithBackoff sets the pause applied while a fault is cached.
func WithBackoff(d time.Duration) Option {
	return WithBackoffFunc(func() time.Duration { return d })
}

// WithBackoffFunc asks fn for the pause before every wait.
func WithBackoffFunc(fn func() time.Duration) Option {
	return func(w *Wrapper) {
		w.backoff = fn
	}
}

// WithLogger replaces the default fault logger.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(w *Wrapper) {
		w.logf = logf
	}
}

// Wrapper calls fn after reloading. Like the reloader it drives, it must
// be used from a single goroutine.
type Wrapper struct {
	fn       Callable
	reloader reloader.Reloader
	backoff  func() time.Duration
	logf     func(format string, args ...any)
	errInfo  *ErrorInfo
}

// New wraps fn. r may be nil, in which case nothing is ever reloaded.
func New(fn Callable, r reloader.Reloader, opts ...Option) *Wrapper {
	w := &Wrapper{
		fn:       fn,
		reloader: r,
		backoff:  func() time.Duration { return DefaultBackoff },
		logf:     log.Printf,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// IsTermination reports whether err asks the loop to stop rather than to
// be captured.
func IsTermination(err error) bool {
	return errors.Is(err, object.ErrExit) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Call reloads, then invokes the callable with args. While a fault is
// cached the callable is not invoked: Call sleeps for the backoff and
// returns the cached *ErrorInfo. A successful reload clears the cache.
// Termination errors are returned as they are; every other fault comes
// back as an *ErrorInfo.
func (w *Wrapper) Call(ctx context.Context, args ...any) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := newPanicError(r)
			if perr, ok := r.(error); ok && IsTermination(perr) {
				res, err = nil, perr
				return
			}
			res, err = nil, w.capture(pe)
		}
	}()

	if w.reloader != nil {
		changed, rerr := w.reloader.Reload(ctx)
		if changed {
			w.errInfo = nil
		}
		if rerr != nil {
			if IsTermination(rerr) {
				return nil, rerr
			}
			return nil, w.capture(rerr)
		}
	}

	if w.errInfo != nil {
		t := time.NewTimer(w.backoff())
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, w.errInfo
	}

	res, err = w.fn.Call(args...)
	if err != nil {
		if IsTermination(err) {
			return nil, err
		}
		return nil, w.capture(err)
	}
	return res, nil
}

func (w *Wrapper) capture(err error) *ErrorInfo {
	info := NewErrorInfo(err)
	w.errInfo = info
	metrics.Get().CapturedErrorsTotal.WithLabelValues(info.Class()).Inc()
	w.logf("%s", info.Text)
	return info
}

// Err returns the cached fault, if any.
func (w *Wrapper) Err() *ErrorInfo {
	return w.errInfo
}

// Reset drops the cached fault so the next call invokes the callable.
func (w *Wrapper) Reset() {
	w.errInfo = nil
}
