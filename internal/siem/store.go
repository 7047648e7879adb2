package siem

import (
	"log/slog"
	"sync"
	"time"
)

// Receipt acknowledges an ingested event.
type Receipt struct {
	EventID     int64 `json:"event_id"`
	TotalEvents int   `json:"total_events"`
	Alert       bool  `json:"-"`
}

// Stats holds aggregate counts over the log.
type Stats struct {
	TotalEvents     int   `json:"total_events"`
	HighRiskEvents  int   `json:"high_risk_events"`
	DeniedAccesses  int   `json:"denied_accesses"`
	AlertsTriggered int64 `json:"alerts_triggered"`
}

// Store is the ordered event log. Thread-safe via RWMutex; id assignment and
// append happen in one critical section, so ids are dense and strictly increasing.
type Store struct {
	mu     sync.RWMutex
	events []Event
	alerts int64

	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for ingest and alert lines.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics enables Prometheus counters for ingests and alerts.
func WithMetrics(m *Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithClock overrides the time source used for received_at.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		events: make([]Event, 0),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest appends attrs as a new event. The map is copied; later changes by the
// caller do not affect the stored event.
func (s *Store) Ingest(attrs map[string]any) Receipt {
	copied := make(map[string]any, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}

	s.mu.Lock()
	event := Event{
		ID:         int64(len(s.events)) + 1,
		ReceivedAt: s.now().UTC(),
		Attributes: copied,
	}
	s.events = append(s.events, event)
	alert := event.IsAlert()
	var alertNo int64
	if alert {
		s.alerts++
		alertNo = s.alerts
	}
	total := len(s.events)
	s.mu.Unlock()

	s.logger.Info("event ingested",
		"event_id", event.ID,
		"event_type", event.attr(keyEventType),
		"source", event.attr(keySource),
	)
	if s.metrics != nil {
		s.metrics.IncIngested()
	}
	if alert {
		s.logger.Warn("security alert",
			"alert", alertNo,
			"event_id", event.ID,
			"event_type", event.attr(keyEventType),
			"source", event.attr(keySource),
			"user", event.attr(keyUser),
			"risk_score", event.attr(keyRiskScore),
		)
		if s.metrics != nil {
			s.metrics.IncAlerts()
		}
	}

	return Receipt{EventID: event.ID, TotalEvents: total, Alert: alert}
}

// Events returns the log in ingest order. The slice is a copy.
func (s *Store) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Alerts returns the running alert counter.
func (s *Store) Alerts() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alerts
}

// Stats scans the log for the category counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		TotalEvents:     len(s.events),
		AlertsTriggered: s.alerts,
	}
	for _, e := range s.events {
		if e.IsHighRisk() {
			stats.HighRiskEvents++
		}
		if e.IsDenied() {
			stats.DeniedAccesses++
		}
	}
	return stats
}
