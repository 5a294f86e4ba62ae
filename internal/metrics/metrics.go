// Package metrics exposes Prometheus instruments for the photocache caches.
// Instruments are created per Registerer so tests can use private registries;
// a nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricNamespace = "photocache"
	cacheSubsystem  = "cache"
)

// Cache names used as label values.
const (
	CacheMetadata = "metadata"
	CacheBlob     = "blob"
	CacheObjects  = "objectstore"
)

// Metrics 汇总缓存相关的计数器与仪表。
type Metrics struct {
	operations *prometheus.CounterVec
	events     *prometheus.CounterVec
	objects    *prometheus.GaugeVec
}

// New 创建并注册所有指标；reg 为 nil 时使用 prometheus.DefaultRegisterer。
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Subsystem: cacheSubsystem,
				Name:      "operation_objects_total",
				Help:      "Count (in # of objects) of operations performed on a photocache cache.",
			},
			[]string{"cache", "operation", "status"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Subsystem: cacheSubsystem,
				Name:      "events_total",
				Help:      "Count of events (evictions, purges, failures) on a photocache cache.",
			},
			[]string{"cache", "event", "reason"},
		),
		objects: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Subsystem: cacheSubsystem,
				Name:      "usage_objects",
				Help:      "Number of objects held in a photocache cache index.",
			},
			[]string{"cache"},
		),
	}

	for _, c := range []prometheus.Collector{m.operations, m.events, m.objects} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveOperation increments the operation counter, e.g. ("blob", "resolve", "disk_hit").
func (m *Metrics) ObserveOperation(cache, operation, status string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(cache, operation, status).Inc()
}

// ObserveEvent increments the event counter.
func (m *Metrics) ObserveEvent(cache, event, reason string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(cache, event, reason).Inc()
}

// ObserveObjects sets the current object count of a cache index.
func (m *Metrics) ObserveObjects(cache string, count int) {
	if m == nil {
		return
	}
	m.objects.WithLabelValues(cache).Set(float64(count))
}
