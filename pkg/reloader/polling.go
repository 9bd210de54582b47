package reloader

import (
	"context"
	"log"
	"time"

	"github.com/mevdschee/tqreload/pkg/metrics"
	"github.com/mevdschee/tqreload/pkg/scanner"
	"github.com/mevdschee/tqreload/pkg/unit"
)

// Polling reloads units reported by a background scan worker. Every Reload
// collects the result of the previous scan, if ready, and submits the next,
// so a change is picked up one or two calls after it hits the disk.
type Polling struct {
	base
	timeout  time.Duration
	interval time.Duration
	worker   *scanner.Worker
	mtimes   map[string]time.Time
	waiting  bool
	lastScan time.Time
}

// NewPolling starts a scan worker for table. timeout is the worker's idle
// timeout; zero means scanner.DefaultTimeout.
func NewPolling(table *unit.Table, timeout time.Duration, opts ...Option) *Polling {
	p := &Polling{
		base:    newBase(table, opts),
		timeout: timeout,
		mtimes:  make(map[string]time.Time),
	}
	for _, u := range table.List() {
		if mt := u.ModTime(); !mt.IsZero() {
			p.mtimes[u.Name] = mt
		}
	}
	p.worker = scanner.Start(timeout)
	return p
}

// Reload implements Reloader.
func (p *Polling) Reload(ctx context.Context) (bool, error) {
	var changed []string
	if res, ok := p.worker.Poll(); ok {
		p.mtimes = res.MTimes
		changed = res.Dirty
		p.waiting = false
	}

	if !p.worker.Alive() {
		p.restart()
	}

	if !p.waiting && time.Since(p.lastScan) >= p.interval {
		p.lastScan = time.Now()
		req := scanner.Request{MTimes: p.mtimes, Origins: p.table.Origins()}
		p.waiting = p.worker.Submit(req)
	}

	if len(changed) == 0 {
		metrics.Get().RecordReload("poll", false, nil)
		return false, nil
	}

	units := make([]*unit.Unit, 0, len(changed))
	for _, name := range changed {
		if u, ok := p.table.Get(name); ok {
			units = append(units, u)
		}
	}
	reloaded, err := p.reloadUnits(ctx, units)
	metrics.Get().RecordReload("poll", reloaded, err)
	return reloaded, err
}

// SetInterval sets the minimum pause between two submitted scans.
func (p *Polling) SetInterval(d time.Duration) {
	p.interval = d
}

func (p *Polling) restart() {
	p.worker.Kill()
	p.worker = scanner.Start(p.timeout)
	p.waiting = false
	metrics.Get().ScanWorkerRestarts.Inc()
	log.Printf("Scan worker exited, started a new one")
}

// Close kills the scan worker.
func (p *Polling) Close() error {
	p.worker.Kill()
	return nil
}
