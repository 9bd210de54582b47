package wrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mevdschee/tqreload/pkg/loader"
	"github.com/mevdschee/tqreload/pkg/object"
	"github.com/mevdschee/tqreload/pkg/reloader"
	"github.com/mevdschee/tqreload/pkg/superreload"
	"github.com/mevdschee/tqreload/pkg/unit"
)

// stubReloader reports the queued results, one per call.
type stubReloader struct {
	results []bool
	errs    []error
	calls   int
}

func (r *stubReloader) Reload(context.Context) (bool, error) {
	i := r.calls
	r.calls++
	var changed bool
	var err error
	if i < len(r.results) {
		changed = r.results[i]
	}
	if i < len(r.errs) {
		err = r.errs[i]
	}
	return changed, err
}

func (r *stubReloader) Close() error { return nil }

type pathDetector struct {
	paths []string
}

func (d *pathDetector) Drain() []string {
	out := d.paths
	d.paths = nil
	return out
}

func (d *pathDetector) Close() error { return nil }

func quiet(string, ...any) {}

func TestCallReturnsResult(t *testing.T) {
	calls := 0
	w := New(CallableFunc(func(args ...any) (any, error) {
		calls++
		return len(args), nil
	}), nil, WithLogger(quiet))

	res, err := w.Call(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res)
	assert.Equal(t, 1, calls)
}

func TestReloadedFunctionIsCalled(t *testing.T) {
	table := unit.NewTable(nil)
	loader.New().Register(table)
	path := filepath.Join(t.TempDir(), "m.yaml")
	require.NoError(t, os.WriteFile(path, []byte("funcs:\n  f:\n    return: 1\n"), 0644))
	_, err := table.Load(context.Background(), "m", path)
	require.NoError(t, err)
	e, err := table.Resolve("m.f")
	require.NoError(t, err)

	d := &pathDetector{}
	w := New(e.(*object.Func), reloader.WithDetector(table, d), WithLogger(quiet))

	res, err := w.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res)

	require.NoError(t, os.WriteFile(path, []byte("funcs:\n  f:\n    return: 2\n"), 0644))
	d.paths = []string{path}
	res, err = w.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res)
}

func TestSyntaxFaultIsCachedUntilReload(t *testing.T) {
	table := unit.NewTable(nil)
	loader.New().Register(table)
	path := filepath.Join(t.TempDir(), "m.yaml")
	require.NoError(t, os.WriteFile(path, []byte("funcs:\n  f:\n    return: 1\n"), 0644))
	_, err := table.Load(context.Background(), "m", path)
	require.NoError(t, err)
	e, _ := table.Resolve("m.f")

	d := &pathDetector{}
	backoff := 30 * time.Millisecond
	w := New(e.(*object.Func), reloader.WithDetector(table, d), WithBackoff(backoff), WithLogger(quiet))

	require.NoError(t, os.WriteFile(path, []byte("funcs:\n\tf: broken\n"), 0644))
	d.paths = []string{path}
	_, err = w.Call(context.Background())
	var info *ErrorInfo
	require.ErrorAs(t, err, &info)
	assert.True(t, info.IsSyntax())
	assert.Equal(t, "syntax", info.Class())
	assert.Empty(t, info.Frames)
	assert.Same(t, info, w.Err())

	start := time.Now()
	_, err = w.Call(context.Background())
	assert.GreaterOrEqual(t, time.Since(start), backoff)
	var again *ErrorInfo
	require.ErrorAs(t, err, &again)
	assert.Same(t, info, again)

	require.NoError(t, os.WriteFile(path, []byte("funcs:\n  f:\n    return: 3\n"), 0644))
	d.paths = []string{path}
	res, err := w.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res)
	assert.Nil(t, w.Err())
}

func TestFaultIsCapturedWithFrames(t *testing.T) {
	calls := 0
	fn := object.NewFunc("m", "f", &object.FuncBody{
		File: "m.yaml",
		Line: 4,
		Code: func(*object.Call) (any, error) {
			calls++
			return nil, errors.New("boom")
		},
	})
	r := &stubReloader{}
	w := New(fn, r, WithBackoff(time.Millisecond), WithLogger(quiet))

	_, err := w.Call(context.Background())
	var info *ErrorInfo
	require.ErrorAs(t, err, &info)
	assert.Equal(t, "fault", info.Class())
	require.Len(t, info.Frames, 1)
	assert.Equal(t, "f", info.Frames[0].Function)
	assert.Contains(t, info.Text, "boom")
	assert.Contains(t, info.Text, "m.f (m.yaml:4)")

	_, err = w.Call(context.Background())
	require.ErrorAs(t, err, &info)
	assert.Equal(t, 1, calls)

	r.results = []bool{false, false, true}
	_, err = w.Call(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestResetClearsFault(t *testing.T) {
	fail := true
	w := New(CallableFunc(func(...any) (any, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return "ok", nil
	}), nil, WithBackoff(time.Millisecond), WithLogger(quiet))

	_, err := w.Call(context.Background())
	require.Error(t, err)
	fail = false
	w.Reset()
	res, err := w.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
}

func TestTerminationPassesThrough(t *testing.T) {
	w := New(CallableFunc(func(...any) (any, error) {
		return nil, object.ErrExit
	}), nil, WithLogger(quiet))
	_, err := w.Call(context.Background())
	assert.ErrorIs(t, err, object.ErrExit)
	assert.Nil(t, w.Err())

	w = New(CallableFunc(func(...any) (any, error) {
		return "unused", nil
	}), &stubReloader{errs: []error{context.Canceled}}, WithLogger(quiet))
	_, err = w.Call(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, w.Err())

	w = New(CallableFunc(func(...any) (any, error) {
		panic(object.ErrExit)
	}), nil, WithLogger(quiet))
	_, err = w.Call(context.Background())
	assert.ErrorIs(t, err, object.ErrExit)
}

func TestPanicIsCaptured(t *testing.T) {
	w := New(CallableFunc(func(...any) (any, error) {
		panic("kaboom")
	}), nil, WithLogger(quiet))

	_, err := w.Call(context.Background())
	var info *ErrorInfo
	require.ErrorAs(t, err, &info)
	assert.Equal(t, "panic", info.Class())
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, info.Frames)
	assert.Contains(t, info.Text, "panic: kaboom")
}

func TestReloadErrorIsCaptured(t *testing.T) {
	boom := errors.New("reload failed")
	calls := 0
	w := New(CallableFunc(func(...any) (any, error) {
		calls++
		return nil, nil
	}), &stubReloader{errs: []error{boom}}, WithBackoff(time.Millisecond), WithLogger(quiet))

	_, err := w.Call(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, calls)
	assert.NotNil(t, w.Err())
}

func TestBackoffHonoursContext(t *testing.T) {
	w := New(CallableFunc(func(...any) (any, error) {
		return nil, errors.New("boom")
	}), nil, WithBackoff(time.Hour), WithLogger(quiet))
	_, err := w.Call(context.Background())
	require.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = w.Call(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsTermination(err))
}

func TestBackoffFuncIsAskedOnEveryWait(t *testing.T) {
	asked := 0
	w := New(CallableFunc(func(...any) (any, error) {
		return nil, errors.New("boom")
	}), nil, WithBackoffFunc(func() time.Duration {
		asked++
		return time.Millisecond
	}), WithLogger(quiet))

	_, err := w.Call(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, asked)
	for range 3 {
		_, err = w.Call(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, 3, asked)
}

func TestJoinedFaultKeepsFramesOfOtherUnits(t *testing.T) {
	raised := &object.CallError{
		Err:    errors.New("boom"),
		Frames: []object.Frame{{Unit: "b", Function: "init"}, {Unit: "b", Function: "f"}},
	}
	err := errors.Join(
		&superreload.Error{Unit: "a", Err: &object.SyntaxError{File: "a.yaml", Line: 2, Msg: "bad indent"}},
		&superreload.Error{Unit: "b", Err: raised},
	)

	info := NewErrorInfo(err)
	assert.True(t, info.IsSyntax())
	assert.Equal(t, raised.Frames, info.Frames)
	assert.Contains(t, info.Text, "b.f")

	only := NewErrorInfo(errors.Join(&superreload.Error{Unit: "a", Err: &object.SyntaxError{File: "a.yaml", Line: 2, Msg: "bad indent"}}))
	assert.Empty(t, only.Frames)
}
