package stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricSubscribers      = "stream_subscribers"
	MetricBatchesDropped   = "stream_batches_dropped_total"
	MetricRecordsPublished = "stream_records_published_total"
)

// Metrics contains Prometheus metrics for the live stream.
// All operations are thread-safe.
type Metrics struct {
	subscribers      prometheus.Gauge
	batchesDropped   prometheus.Counter
	recordsPublished prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricSubscribers,
			Help: "Number of connected live stream subscribers",
		}),
		batchesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricBatchesDropped,
			Help: "Total number of record batches dropped because a subscriber queue was full",
		}),
		recordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecordsPublished,
			Help: "Total number of tailed records offered to subscribers",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncSubscribers records a new subscriber.
func (m *Metrics) IncSubscribers() {
	m.subscribers.Inc()
}

// DecSubscribers records a departed subscriber.
func (m *Metrics) DecSubscribers() {
	m.subscribers.Dec()
}

// IncBatchesDropped counts one batch dropped for one subscriber.
func (m *Metrics) IncBatchesDropped() {
	m.batchesDropped.Inc()
}

// AddRecordsPublished counts records offered to subscribers.
func (m *Metrics) AddRecordsPublished(n int) {
	m.recordsPublished.Add(float64(n))
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.subscribers,
		m.batchesDropped,
		m.recordsPublished,
	}
}
