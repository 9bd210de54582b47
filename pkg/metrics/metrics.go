// Package metrics exposes Prometheus metrics for the reload engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for tqreload
type Metrics struct {
	// Reload cycle metrics
	ReloadsTotal     *prometheus.CounterVec
	UnitReloadsTotal *prometheus.CounterVec
	ReloadDuration   prometheus.Histogram

	// Patcher metrics
	EntitiesReconciled  *prometheus.CounterVec
	InstancesRetargeted prometheus.Counter
	TrackedKeys         prometheus.Gauge

	// Scanner metrics
	ScanDuration       prometheus.Histogram
	ScanWorkerRestarts prometheus.Counter

	// Wrapper metrics
	CapturedErrorsTotal *prometheus.CounterVec
}

var metrics *Metrics
var metricsOnce sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics()
	})
	return metrics
}

// newMetrics creates and registers all Prometheus metrics
func newMetrics() *Metrics {
	return &Metrics{
		ReloadsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tqreload_reloads_total",
			Help: "Reload checks per strategy and outcome",
		}, []string{"strategy", "result"}),
		UnitReloadsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tqreload_unit_reloads_total",
			Help: "Unit re-executions per unit and outcome",
		}, []string{"unit", "result"}),
		ReloadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tqreload_unit_reload_duration_seconds",
			Help:    "Time spent re-executing and patching one unit",
			Buckets: prometheus.DefBuckets,
		}),
		EntitiesReconciled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tqreload_entities_reconciled_total",
			Help: "Old entities patched in place per kind",
		}, []string{"kind"}),
		InstancesRetargeted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tqreload_instances_retargeted_total",
			Help: "Instances moved to a reloaded type definition",
		}),
		TrackedKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tqreload_tracked_keys",
			Help: "Identifiers with live tracked old entities",
		}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tqreload_scan_duration_seconds",
			Help:    "Time spent by the scan worker on one request",
			Buckets: prometheus.DefBuckets,
		}),
		ScanWorkerRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tqreload_scan_worker_restarts_total",
			Help: "Scan workers replaced after they exited",
		}),
		CapturedErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tqreload_captured_errors_total",
			Help: "Faults captured by the call wrapper per class",
		}, []string{"class"}),
	}
}

// RecordReload records the outcome of one Reload call.
func (m *Metrics) RecordReload(strategy string, changed bool, err error) {
	result := "unchanged"
	switch {
	case err != nil:
		result = "error"
	case changed:
		result = "reloaded"
	}
	m.ReloadsTotal.WithLabelValues(strategy, result).Inc()
}

// RecordUnitReload records one unit re-execution.
func (m *Metrics) RecordUnitReload(unit string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.UnitReloadsTotal.WithLabelValues(unit, result).Inc()
	m.ReloadDuration.Observe(duration.Seconds())
}

// RecordReconcile records a successful in-place patch of an entity kind.
func (m *Metrics) RecordReconcile(kind string) {
	m.EntitiesReconciled.WithLabelValues(kind).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
