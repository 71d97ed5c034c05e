package pool

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ice-blockchain/go-dsrouter"
)

const metricsNamespace = "dsrouter"

const (
	outcomeSuccess  = "success"
	outcomeError    = "error"
	outcomeCanceled = "canceled"
)

// Metrics collects routing metrics. A nil *Metrics records nothing.
type Metrics struct {
	operations          *prometheus.CounterVec
	duration            *prometheus.HistogramVec
	readFallbacks       prometheus.Counter
	acquisitionFailures *prometheus.CounterVec
	healthy             *prometheus.GaugeVec
}

var _ prometheus.Collector = (*Metrics)(nil)

// NewMetrics returns a collector to be registered in a prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Number of routed operations.",
		}, []string{"datasource", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent executing routed operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"datasource", "operation"}),
		readFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "read_fallbacks_total",
			Help:      "Number of reads routed to the master because no slave was healthy.",
		}),
		acquisitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "acquisition_failures_total",
			Help:      "Number of failed connection acquisitions.",
		}, []string{"datasource"}),
		healthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "datasource_healthy",
			Help:      "1 if the datasource is healthy, 0 otherwise.",
		}, []string{"datasource", "role"}),
	}
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.operations.Describe(ch)
	m.duration.Describe(ch)
	m.readFallbacks.Describe(ch)
	m.acquisitionFailures.Describe(ch)
	m.healthy.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.operations.Collect(ch)
	m.duration.Collect(ch)
	m.readFallbacks.Collect(ch)
	m.acquisitionFailures.Collect(ch)
	m.healthy.Collect(ch)
}

func (m *Metrics) observe(id string, op operation, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
		var cancelErr *dsrouter.CancellationError
		if errors.As(err, &cancelErr) {
			outcome = outcomeCanceled
		}
	}
	m.operations.WithLabelValues(id, string(op), outcome).Inc()
	m.duration.WithLabelValues(id, string(op)).Observe(elapsed.Seconds())
}

func (m *Metrics) readFallback() {
	if m == nil {
		return
	}
	m.readFallbacks.Inc()
}

func (m *Metrics) acquisitionFailed(id string) {
	if m == nil {
		return
	}
	m.acquisitionFailures.WithLabelValues(id).Inc()
}

func (m *Metrics) setHealth(d dsrouter.Descriptor) {
	if m == nil {
		return
	}
	value := 0.0
	if d.Healthy {
		value = 1
	}
	m.healthy.WithLabelValues(d.ID, d.Role.String()).Set(value)
}
