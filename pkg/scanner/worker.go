// Package scanner detects changed units by sampling file modification times
// on a background worker.
//
// The worker shares no memory with its caller: requests and results travel
// by value over two single-slot channels, and the caller never waits on
// either. A worker that sees no request for its idle timeout exits; the
// caller notices through Alive and starts a new one.
package scanner

import (
	"context"
	"time"

	"github.com/mevdschee/tqreload/pkg/metrics"
)

// DefaultTimeout is how long an idle worker waits for a request.
const DefaultTimeout = 2 * time.Second

// Worker runs Scan for one request at a time.
type Worker struct {
	requests chan Request
	results  chan Result
	timeout  time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// Start launches a worker that exits after timeout without requests.
func Start(timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		requests: make(chan Request, 1),
		results:  make(chan Result, 1),
		timeout:  timeout,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	idle := time.NewTimer(w.timeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
			return
		case req := <-w.requests:
			start := time.Now()
			res := Scan(req)
			metrics.Get().ScanDuration.Observe(time.Since(start).Seconds())
			select {
			case w.results <- res:
			case <-ctx.Done():
				return
			}
			idle.Reset(w.timeout)
		}
	}
}

// Submit hands a request to the worker without blocking. It reports false
// when the slot is taken or the worker is gone.
func (w *Worker) Submit(req Request) bool {
	if !w.Alive() {
		return false
	}
	select {
	case w.requests <- req.clone():
		return true
	default:
		return false
	}
}

// Poll returns a finished result if one is waiting.
func (w *Worker) Poll() (Result, bool) {
	select {
	case res := <-w.results:
		return res, true
	default:
		return Result{}, false
	}
}

// Alive reports whether the worker goroutine is still running.
func (w *Worker) Alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Kill stops the worker at once. A scan in progress is abandoned.
func (w *Worker) Kill() {
	w.cancel()
}

// Done is closed when the worker has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
