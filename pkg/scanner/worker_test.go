package scanner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0644))

	w := Start(time.Second)
	defer w.Kill()

	req := Request{
		MTimes:  map[string]time.Time{"a": time.Unix(0, 0)},
		Origins: map[string]string{"a": path},
	}
	require.True(t, w.Submit(req))

	var res Result
	require.Eventually(t, func() bool {
		var ok bool
		res, ok = w.Poll()
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a"}, res.Dirty)
	assert.Equal(t, time.Unix(0, 0), req.MTimes["a"])
}

func TestWorkerSubmitDoesNotBlock(t *testing.T) {
	w := Start(time.Second)
	defer w.Kill()

	accepted := 0
	for i := 0; i < 5; i++ {
		if w.Submit(Request{}) {
			accepted++
		}
	}
	assert.GreaterOrEqual(t, accepted, 1)
	assert.Less(t, accepted, 5)
}

func TestWorkerIdleTimeout(t *testing.T) {
	w := Start(20 * time.Millisecond)
	assert.True(t, w.Alive())

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after its idle timeout")
	}
	assert.False(t, w.Alive())
	assert.False(t, w.Submit(Request{}))
}

func TestWorkerKill(t *testing.T) {
	w := Start(time.Minute)
	w.Kill()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after Kill")
	}
	assert.False(t, w.Alive())
	_, ok := w.Poll()
	assert.False(t, ok)
}
