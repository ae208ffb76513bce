// Package metrics exposes prometheus collectors for roster operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for Collector.Observe.
const (
	ResultChanged  = "changed"
	ResultNoop     = "noop"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

type Collector struct {
	requestsTotal   *prometheus.CounterVec
	saveDuration    prometheus.Histogram
	publishFailures prometheus.Counter
	rosterMembers   *prometheus.GaugeVec
	dirty           prometheus.Gauge
}

// New registers the collectors with reg. A nil reg creates a private
// registry.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Collector{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wperm_requests_total",
			Help: "Roster mutation requests by operation, category and result",
		}, []string{"op", "category", "result"}),

		saveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wperm_save_duration_seconds",
			Help:    "Time to write and publish the roster file",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),

		publishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "wperm_publish_failures_total",
			Help: "Saves whose file write succeeded but publish failed",
		}),

		rosterMembers: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wperm_roster_members",
			Help: "Number of pseudonyms per category",
		}, []string{"category"}),

		dirty: f.NewGauge(prometheus.GaugeOpts{
			Name: "wperm_roster_dirty",
			Help: "1 when the in-memory roster has not been persisted",
		}),
	}
}

// Observe counts one handled request.
func (c *Collector) Observe(op, category, result string) {
	c.requestsTotal.WithLabelValues(op, category, result).Inc()
}

// ObserveSave records how long a save took.
func (c *Collector) ObserveSave(d time.Duration) {
	c.saveDuration.Observe(d.Seconds())
}

// PublishFailed counts a save whose publish hook failed.
func (c *Collector) PublishFailed() {
	c.publishFailures.Inc()
}

// SetMembers sets the member count for category.
func (c *Collector) SetMembers(category string, n int) {
	c.rosterMembers.WithLabelValues(category).Set(float64(n))
}

// SetDirty records whether unsaved changes exist.
func (c *Collector) SetDirty(dirty bool) {
	if dirty {
		c.dirty.Set(1)
		return
	}
	c.dirty.Set(0)
}
