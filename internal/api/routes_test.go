package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/sentinel/internal/siem"
)

func TestPEPAdminMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	mux := NewPEPAdminMux(NewHealthHandlers(HealthHandlersConfig{}), MetricsHandler(reg))

	tests := []struct {
		path       string
		wantStatus int
	}{
		{PathHealth, http.StatusOK},
		{PathReady, http.StatusOK},
		{PathMetrics, http.StatusOK},
		{"/orders", http.StatusNotFound},
		{"/health/deep", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.wantStatus {
			t.Errorf("%s: expected status %d, got %d", tt.path, tt.wantStatus, w.Code)
		}
	}
}

func TestSIEMMux(t *testing.T) {
	store := siem.NewStore(siem.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	mux := NewSIEMMux(NewSIEMHandlers(store), NewHealthHandlers(HealthHandlersConfig{}), MetricsHandler(prometheus.NewRegistry()))

	tests := []struct {
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{http.MethodPost, PathIngest, `{"a":1}`, http.StatusOK},
		{http.MethodGet, PathEvents, "", http.StatusOK},
		{http.MethodGet, PathStats, "", http.StatusOK},
		{http.MethodGet, PathHealth, "", http.StatusOK},
		{http.MethodGet, PathReady, "", http.StatusOK},
		{http.MethodGet, PathMetrics, "", http.StatusOK},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
		{http.MethodDelete, PathEvents, "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestDashboardMux_CORS(t *testing.T) {
	mux := NewDashboardMux(DashboardConfig{
		Handlers:       NewDashboardHandlers(t.TempDir()+"/events.jsonl", 200),
		SSE:            http.NotFoundHandler(),
		WebSocket:      http.NotFoundHandler(),
		Health:         NewHealthHandlers(HealthHandlersConfig{}),
		Metrics:        MetricsHandler(prometheus.NewRegistry()),
		AllowedOrigins: []string{"https://dash.example"},
	})

	req := httptest.NewRequest(http.MethodGet, PathCorrelations, nil)
	req.Header.Set("Origin", "https://dash.example")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example" {
		t.Errorf("expected CORS header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, PathRecentEvents, nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403 for disallowed origin, got %d", w.Code)
	}
}
