package api

import (
	"net/http"

	"github.com/onnwee/sentinel/internal/middleware"
)

// Probe and metrics paths.
const (
	PathHealth  = "/health"
	PathReady   = "/ready"
	PathMetrics = "/metrics"
)

// Dashboard and sink paths.
const (
	PathIngest       = "/ingest"
	PathEvents       = "/events"
	PathStats        = "/stats"
	PathCorrelations = "/api/correlations"
	PathRecentEvents = "/api/events"
	PathStream       = "/stream"
	PathWebSocket    = "/ws"
)

// HealthPaths are not recorded in HTTP metrics on the servers that own them.
var HealthPaths = []string{PathHealth, PathReady}

// ExemptPaths are never rate limited on the servers that own them.
var ExemptPaths = []string{PathHealth, PathReady, PathMetrics}

// PEPAdminRoutes are the metric route labels for the enforcement point's
// admin listener. The proxy listener owns no paths: every request there is
// enforced and labeled middleware.UnmatchedRoute.
var PEPAdminRoutes = []string{PathHealth, PathReady, PathMetrics}

// SIEMRoutes are the metric route labels for the sink.
var SIEMRoutes = []string{PathIngest, PathEvents, PathStats, PathHealth, PathReady, PathMetrics}

// DashboardRoutes are the metric route labels for the dashboard.
var DashboardRoutes = []string{PathCorrelations, PathRecentEvents, PathStream, PathWebSocket, PathHealth, PathReady, PathMetrics}

// NewPEPAdminMux serves the enforcement point's probes and metrics. It runs on
// its own port so the proxy port can hand every request, including one for
// /health or /metrics, to the decision service.
func NewPEPAdminMux(health *HealthHandlers, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(PathHealth, health.Health)
	mux.HandleFunc(PathReady, health.Ready)
	mux.Handle(PathMetrics, metrics)
	mux.HandleFunc("/", NotFound)
	return mux
}

// NewSIEMMux routes the sink API.
func NewSIEMMux(h *SIEMHandlers, health *HealthHandlers, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(PathIngest, h.Ingest)
	mux.HandleFunc(PathEvents, h.Events)
	mux.HandleFunc(PathStats, h.Stats)
	mux.HandleFunc(PathHealth, h.Health)
	mux.HandleFunc(PathReady, health.Ready)
	mux.Handle(PathMetrics, metrics)
	mux.HandleFunc("/", NotFound)
	return mux
}

// DashboardConfig holds the dashboard's handlers.
type DashboardConfig struct {
	Handlers  *DashboardHandlers
	SSE       http.Handler
	WebSocket http.Handler
	Health    *HealthHandlers
	Metrics   http.Handler
	// AllowedOrigins enables CORS on the read endpoints and the SSE stream.
	AllowedOrigins []string
}

// NewDashboardMux routes the dashboard API and live streams.
func NewDashboardMux(cfg DashboardConfig) *http.ServeMux {
	cors := middleware.CORS(cfg.AllowedOrigins)

	mux := http.NewServeMux()
	mux.Handle(PathCorrelations, cors(http.HandlerFunc(cfg.Handlers.Correlations)))
	mux.Handle(PathRecentEvents, cors(http.HandlerFunc(cfg.Handlers.Events)))
	mux.Handle(PathStream, cors(cfg.SSE))
	mux.Handle(PathWebSocket, cfg.WebSocket)
	mux.HandleFunc(PathHealth, cfg.Health.Health)
	mux.HandleFunc(PathReady, cfg.Health.Ready)
	mux.Handle(PathMetrics, cfg.Metrics)
	mux.HandleFunc("/", NotFound)
	return mux
}
