// Package reloader combines a change detector with the superreload
// orchestrator behind a single Reload call.
package reloader

import (
	"context"
	"errors"
	"log"

	"github.com/mevdschee/tqreload/pkg/superreload"
	"github.com/mevdschee/tqreload/pkg/unit"
)

// Reloader reloads every unit that changed since the previous call.
// Reload reports whether at least one unit was re-executed. It must not be
// called from two goroutines at once.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
	Close() error
}

// Option configures a reloader.
type Option func(*base)

// WithSink hands identifiers that appear for the first time to sink.
func WithSink(sink superreload.Sink) Option {
	return func(b *base) {
		b.sink = sink
	}
}

// WithTracker shares a tracker between reloaders.
func WithTracker(tracker *superreload.Tracker) Option {
	return func(b *base) {
		b.tracker = tracker
	}
}

// base holds what both detection strategies share.
type base struct {
	table   *unit.Table
	tracker *superreload.Tracker
	sink    superreload.Sink
}

func newBase(table *unit.Table, opts []Option) base {
	b := base{table: table}
	for _, opt := range opts {
		opt(&b)
	}
	if b.tracker == nil {
		b.tracker = superreload.NewTracker()
	}
	return b
}

// Tracker returns the tracker holding the old entities.
func (b *base) Tracker() *superreload.Tracker {
	return b.tracker
}

// reloadUnits re-executes units in order. A failure does not stop the
// remaining units; all failures are returned joined.
func (b *base) reloadUnits(ctx context.Context, units []*unit.Unit) (bool, error) {
	reloaded := false
	var errs []error
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := superreload.Reload(ctx, b.table, u, b.tracker, b.sink); err != nil {
			log.Printf("Failed to reload unit %s: %v", u.Name, err)
			errs = append(errs, err)
			continue
		}
		reloaded = true
	}
	return reloaded, errors.Join(errs...)
}
