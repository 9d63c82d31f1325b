package pgxpool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a Pool reports through. Grouping
// them behind a registerable type (rather than package-level globals) lets
// a process run more than one pool without metric name collisions.
type Metrics struct {
	acquireDuration prometheus.Histogram
	acquired        prometheus.Gauge
	idle            prometheus.Gauge
	waiting         prometheus.Gauge
	exhaustedTotal  prometheus.Counter
}

// NewMetrics builds and registers a pool's metrics against reg under the
// given name label, e.g. NewMetrics(reg, "primary").
func NewMetrics(reg prometheus.Registerer, name string) *Metrics {
	labels := prometheus.Labels{"pool": name}
	m := &Metrics{
		acquireDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "pgxpool_acquire_duration_seconds",
			Help:        "Time spent waiting in Pool.Acquire",
			Buckets:     prometheus.ExponentialBuckets(0.0001, 2, 14),
			ConstLabels: labels,
		}),
		acquired: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pgxpool_connections_acquired",
			Help:        "Number of connections currently acquired",
			ConstLabels: labels,
		}),
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pgxpool_connections_idle",
			Help:        "Number of idle connections held by the pool",
			ConstLabels: labels,
		}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pgxpool_connections_waiting",
			Help:        "Number of callers currently blocked in Acquire",
			ConstLabels: labels,
		}),
		exhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pgxpool_exhausted_total",
			Help:        "Total number of times Acquire found the pool at capacity",
			ConstLabels: labels,
		}),
	}
	reg.MustRegister(m.acquireDuration, m.acquired, m.idle, m.waiting, m.exhaustedTotal)
	return m
}

func (m *Metrics) AcquireDuration(d time.Duration) { m.acquireDuration.Observe(d.Seconds()) }
func (m *Metrics) PoolExhausted()                  { m.exhaustedTotal.Inc() }

func (m *Metrics) UpdatePoolStats(acquired, idle, waiting int) {
	m.acquired.Set(float64(acquired))
	m.idle.Set(float64(idle))
	m.waiting.Set(float64(waiting))
}
