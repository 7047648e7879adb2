package siem

import "github.com/prometheus/client_golang/prometheus"

// Metrics names as constants for consistency.
const (
	MetricEventsIngested = "siem_events_ingested_total"
	MetricAlerts         = "siem_alerts_total"
)

// Metrics contains Prometheus counters for the sink.
type Metrics struct {
	ingested prometheus.Counter
	alerts   prometheus.Counter
}

// NewMetrics creates unregistered sink metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsIngested,
			Help: "Total number of events accepted by the ingest endpoint",
		}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricAlerts,
			Help: "Total number of ingested events classified as alerts",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncIngested counts one ingested event.
func (m *Metrics) IncIngested() {
	m.ingested.Inc()
}

// IncAlerts counts one alert.
func (m *Metrics) IncAlerts() {
	m.alerts.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.ingested, m.alerts}
}
