package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/sentinel/internal/correlate"
	"github.com/onnwee/sentinel/internal/tail"
)

// DashboardHandlers serves on-demand reads of the events file.
type DashboardHandlers struct {
	eventsFile   string
	defaultLimit int
}

// NewDashboardHandlers creates handlers reading eventsFile. GET /api/events
// returns defaultLimit records when n is not given.
func NewDashboardHandlers(eventsFile string, defaultLimit int) *DashboardHandlers {
	return &DashboardHandlers{eventsFile: eventsFile, defaultLimit: defaultLimit}
}

// Correlations handles GET /api/correlations. Every call re-reads the whole file.
func (h *DashboardHandlers) Correlations(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	records, err := tail.ReadAll(h.eventsFile)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read events file", "path", h.eventsFile, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to read events")
		return
	}
	writeJSON(w, ctx, http.StatusOK, correlate.Correlate(records))
}

// Events handles GET /api/events?n=<int>, returning the last n records.
func (h *DashboardHandlers) Events(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	n := h.defaultLimit
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "n must be a non-negative integer")
			return
		}
		n = parsed
	}

	records, err := tail.ReadAll(h.eventsFile)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read events file", "path", h.eventsFile, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to read events")
		return
	}
	writeJSON(w, ctx, http.StatusOK, tail.Last(records, n))
}
