package reloader

import (
	"context"

	"github.com/mevdschee/tqreload/pkg/metrics"
	"github.com/mevdschee/tqreload/pkg/unit"
	"github.com/mevdschee/tqreload/pkg/watcher"
)

// Detector yields the files that changed since it was last drained.
type Detector interface {
	Drain() []string
	Close() error
}

// Watching reloads units whose files were reported by a filesystem watcher.
type Watching struct {
	base
	detector Detector
}

// NewWatching watches roots and reloads the units of table backed by files
// that change under them.
func NewWatching(table *unit.Table, roots []watcher.Root, wopts watcher.Options, opts ...Option) (*Watching, error) {
	fw, err := watcher.NewFileWatcher(roots, wopts)
	if err != nil {
		return nil, err
	}
	return WithDetector(table, fw, opts...), nil
}

// WithDetector builds a Watching reloader around an existing detector.
func WithDetector(table *unit.Table, d Detector, opts ...Option) *Watching {
	return &Watching{base: newBase(table, opts), detector: d}
}

// Reload implements Reloader.
func (w *Watching) Reload(ctx context.Context) (bool, error) {
	paths := w.detector.Drain()
	if len(paths) == 0 {
		metrics.Get().RecordReload("watch", false, nil)
		return false, nil
	}

	// Collect first: re-executing a unit may load others into the table.
	seen := make(map[*unit.Unit]bool)
	var units []*unit.Unit
	for _, path := range paths {
		for _, u := range w.table.ByOrigin(path) {
			if !seen[u] {
				seen[u] = true
				units = append(units, u)
			}
		}
	}

	changed, err := w.reloadUnits(ctx, units)
	metrics.Get().RecordReload("watch", changed, err)
	return changed, err
}

// Close stops the detector.
func (w *Watching) Close() error {
	return w.detector.Close()
}
