package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/onnwee/sentinel/internal/api"
	"github.com/onnwee/sentinel/internal/config"
	"github.com/onnwee/sentinel/internal/health"
	"github.com/onnwee/sentinel/internal/middleware"
	"github.com/onnwee/sentinel/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

// stack is what every server subcommand shares: configuration, logging,
// the metrics registry and tracing.
type stack struct {
	name     string
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *middleware.Metrics
	tracer   *tracing.Provider

	// checkers holds readiness checks contributed by rateLimiter.
	checkers []api.NamedChecker
	closers  []func() error
}

// newStack loads configuration and sets up logging, metrics and tracing for
// the server called name ("pep", "siem" or "dashboard").
func newStack(cmd *cobra.Command, name string) (*stack, error) {
	cfg, errs := config.Load(getConfigPath(cmd))
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	logger := middleware.NewLogger(cfg.Env).With("server", name)
	slog.SetDefault(logger)

	summary := cfg.LogSummary()
	attrs := make([]any, 0, len(summary)*2)
	for k, v := range summary {
		attrs = append(attrs, k, v)
	}
	logger.Info("configuration loaded", attrs...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics := middleware.NewMetrics(name)
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:    "sentinel-" + name,
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplingRate:   cfg.TracingSampleRate,
		InsecureMode:   cfg.TracingInsecure,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize tracing: %w", err)
	}

	return &stack{
		name:     name,
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics,
		tracer:   tp,
	}, nil
}

// rateLimiter builds the rate limiting middleware, or nil when disabled.
// Requests for the exempt paths bypass it. The store's background work stops
// when ctx is canceled.
func (st *stack) rateLimiter(ctx context.Context, keyFunc middleware.KeyFunc, exempt ...string) (func(http.Handler) http.Handler, error) {
	if st.cfg.RateLimitRequests <= 0 {
		return nil, nil
	}
	limit := middleware.RateLimitConfig{
		RequestsPerWindow: st.cfg.RateLimitRequests,
		WindowDuration:    st.cfg.RateLimitWindow,
	}
	if err := limit.Validate(); err != nil {
		return nil, err
	}

	var store middleware.RateLimitStore
	if st.cfg.RedisURL != "" {
		opts, err := redis.ParseURL(st.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		st.closers = append(st.closers, client.Close)
		st.checkers = append(st.checkers, api.NamedChecker{Name: "redis", Checker: health.NewRedisChecker(client)})
		store = middleware.NewRedisRateLimitStore(client).WithMetrics(st.metrics)
		st.logger.Info("rate limiting enabled", "store", "redis", "requests", limit.RequestsPerWindow, "window", limit.WindowDuration)
	} else {
		mem := middleware.NewInMemoryRateLimitStore()
		go mem.RunCleanup(ctx, limit.WindowDuration)
		store = mem
		st.logger.Info("rate limiting enabled", "store", "memory", "requests", limit.RequestsPerWindow, "window", limit.WindowDuration)
	}

	return middleware.RateLimiter(store, limit, keyFunc, st.metrics, exempt...), nil
}

// handler wraps h in the standard chain:
// RequestID -> Tracing -> Logging -> HTTPMetrics -> RateLimiter -> h.
// routes bound the metric path labels; requests for the unrecorded paths
// are left out of HTTP metrics.
func (st *stack) handler(h http.Handler, routes, unrecorded []string, limiter func(http.Handler) http.Handler) http.Handler {
	if limiter != nil {
		h = limiter(h)
	}
	normalize := middleware.StaticRoutes(routes...)
	h = middleware.HTTPMetrics(st.metrics, normalize, unrecorded...)(h)
	h = middleware.Logging(st.logger)(h)
	h = middleware.Tracing("sentinel-"+st.name, normalize)(h)
	return middleware.RequestID(h)
}

func (st *stack) metricsHandler() http.Handler {
	return api.MetricsHandler(st.registry)
}

// close releases everything the stack opened.
func (st *stack) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := st.tracer.Shutdown(ctx); err != nil {
		st.logger.Error("failed to shut down tracing", "error", err)
	}
	for _, c := range st.closers {
		if err := c(); err != nil {
			st.logger.Warn("failed to close resource", "error", err)
		}
	}
}

// newServer builds an http.Server with the shared timeouts.
func newServer(port int, handler http.Handler, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

// serve runs srv until ctx is canceled, then drains in-flight requests.
func serve(ctx context.Context, logger *slog.Logger, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
