package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/onnwee/sentinel/internal/siem"
)

// maxIngestBytes bounds a single ingested event body.
const maxIngestBytes = 1 << 20

// SIEMHandlers serves the event ingest sink.
type SIEMHandlers struct {
	store *siem.Store
}

// NewSIEMHandlers creates handlers backed by store.
func NewSIEMHandlers(store *siem.Store) *SIEMHandlers {
	return &SIEMHandlers{store: store}
}

// IngestResponse acknowledges POST /ingest.
type IngestResponse struct {
	Status      string `json:"status"`
	EventID     int64  `json:"event_id"`
	TotalEvents int    `json:"total_events"`
}

// EventsResponse is the full log dump.
type EventsResponse struct {
	TotalEvents int          `json:"total_events"`
	TotalAlerts int64        `json:"total_alerts"`
	Events      []siem.Event `json:"events"`
}

// SIEMHealthResponse is the liveness response with sink counters.
type SIEMHealthResponse struct {
	Status          string `json:"status"`
	Timestamp       string `json:"timestamp"`
	EventsReceived  int    `json:"events_received"`
	AlertsTriggered int64  `json:"alerts_triggered"`
}

// Ingest handles POST /ingest. The body must be a single JSON object.
func (h *SIEMHandlers) Ingest(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()

	attrs, err := decodeObject(http.MaxBytesReader(w, r.Body, maxIngestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, ctx, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "Request body too large")
			return
		}
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Request body must be a JSON object")
		return
	}

	receipt := h.store.Ingest(attrs)
	writeJSON(w, ctx, http.StatusOK, IngestResponse{
		Status:      "ok",
		EventID:     receipt.EventID,
		TotalEvents: receipt.TotalEvents,
	})
}

// Events handles GET /events.
func (h *SIEMHandlers) Events(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	events := h.store.Events()
	writeJSON(w, r.Context(), http.StatusOK, EventsResponse{
		TotalEvents: len(events),
		TotalAlerts: h.store.Alerts(),
		Events:      events,
	})
}

// Stats handles GET /stats.
func (h *SIEMHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, h.store.Stats())
}

// Health handles GET /health for the sink.
func (h *SIEMHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, SIEMHealthResponse{
		Status:          "healthy",
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		EventsReceived:  h.store.Len(),
		AlertsTriggered: h.store.Alerts(),
	})
}

// decodeObject reads exactly one JSON object. Numbers keep their literal form.
func decodeObject(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("body is not a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON object")
	}
	return obj, nil
}
