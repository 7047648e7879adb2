// Package siem implements the in-memory security event sink: an append-only,
// ordered log of ingested events with alert classification and aggregate counts.
package siem

import (
	"encoding/json"
	"time"
)

// Attribute keys the sink inspects. Everything else is carried verbatim.
const (
	keySeverity  = "severity"
	keyEvent     = "event"
	keyResult    = "result"
	keyEventType = "event_type"
	keySource    = "source"
	keyUser      = "user"
	keyRiskScore = "risk_score"
)

// SeverityHigh is the severity value that raises an alert.
const SeverityHigh = "HIGH"

// Event is one ingested record. Events are immutable once appended.
type Event struct {
	ID         int64
	ReceivedAt time.Time
	Attributes map[string]any
}

// MarshalJSON renders the event as a flat object: the caller's attributes plus
// id and received_at. The server-assigned fields win on key collision.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Attributes)+2)
	for k, v := range e.Attributes {
		out[k] = v
	}
	out["id"] = e.ID
	out["received_at"] = e.ReceivedAt.Format(time.RFC3339Nano)
	return json.Marshal(out)
}

// IsHighRisk reports whether the event carries severity "HIGH".
func (e Event) IsHighRisk() bool {
	s, ok := e.Attributes[keySeverity].(string)
	return ok && s == SeverityHigh
}

// IsDenied reports whether the nested event.result field is explicitly false.
func (e Event) IsDenied() bool {
	nested, ok := e.Attributes[keyEvent].(map[string]any)
	if !ok {
		return false
	}
	result, ok := nested[keyResult].(bool)
	return ok && !result
}

// IsAlert reports whether the event is alert-worthy.
func (e Event) IsAlert() bool {
	return e.IsHighRisk() || e.IsDenied()
}

// attr returns a loggable attribute value, or "unknown" when absent.
func (e Event) attr(key string) any {
	if v, ok := e.Attributes[key]; ok && v != nil && v != "" {
		return v
	}
	return "unknown"
}
