package pep

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricDecisions        = "pep_decisions_total"
	MetricDecisionDuration = "pep_decision_duration_seconds"
	MetricUpstreamErrors   = "pep_upstream_errors_total"
)

// Outcome labels for MetricDecisions. Canceled counts requests whose caller
// went away before the verdict arrived.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeErrored  = "errored"
	OutcomeCanceled = "canceled"
)

// Metrics contains Prometheus metrics for the enforcement dispatcher.
// All operations are thread-safe.
type Metrics struct {
	decisions        *prometheus.CounterVec
	decisionDuration prometheus.Histogram
	upstreamErrors   prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricDecisions,
				Help: "Total number of enforcement decisions by outcome",
			},
			[]string{"outcome"},
		),
		decisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricDecisionDuration,
			Help:    "Latency of calls to the decision service in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}),
		upstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricUpstreamErrors,
			Help: "Total number of allowed requests that failed to reach the downstream target",
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

// IncDecision increments the decision counter for outcome.
func (m *Metrics) IncDecision(outcome string) {
	m.decisions.WithLabelValues(outcome).Inc()
}

// ObserveDecisionDuration records one decision service round trip.
func (m *Metrics) ObserveDecisionDuration(seconds float64) {
	m.decisionDuration.Observe(seconds)
}

// IncUpstreamErrors counts a failed forward to the downstream target.
func (m *Metrics) IncUpstreamErrors() {
	m.upstreamErrors.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.decisions,
		m.decisionDuration,
		m.upstreamErrors,
	}
}
