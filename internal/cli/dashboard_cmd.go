package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/sentinel/internal/api"
	"github.com/onnwee/sentinel/internal/health"
	"github.com/onnwee/sentinel/internal/middleware"
	"github.com/onnwee/sentinel/internal/stream"
	"github.com/onnwee/sentinel/internal/tail"
)

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Run the live correlation dashboard",
		Long:  "Tails the JSONL events file, streams appended records over SSE and WebSocket, and serves per-actor correlations.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			st, err := newStack(cmd, "dashboard")
			if err != nil {
				return err
			}
			defer st.close()

			return runDashboard(ctx, st)
		},
	}
}

// dashboard is the assembled dashboard: its HTTP handler and the watcher
// feeding the live streams.
type dashboard struct {
	handler   http.Handler
	watcher   *tail.Watcher
	publisher *stream.Publisher
}

func buildDashboard(ctx context.Context, st *stack) (*dashboard, error) {
	cfg := st.cfg

	tracker, err := tail.NewTracker(cfg.EventsFile)
	if err != nil {
		return nil, err
	}

	metrics := stream.NewMetrics()
	if err := metrics.Register(st.registry); err != nil {
		return nil, fmt.Errorf("register stream metrics: %w", err)
	}
	publisher := stream.NewPublisher(cfg.SubscriberBuffer, stream.WithLogger(st.logger), stream.WithMetrics(metrics))
	watcher := tail.NewWatcher(tracker, publisher.Publish, st.logger)

	limiter, err := st.rateLimiter(ctx, middleware.IPKeyFunc(), api.ExemptPaths...)
	if err != nil {
		return nil, err
	}

	checkers := []api.NamedChecker{{Name: "events_dir", Checker: health.NewDirChecker(cfg.EventsFile)}}
	mux := api.NewDashboardMux(api.DashboardConfig{
		Handlers:       api.NewDashboardHandlers(cfg.EventsFile, cfg.EventsDefaultLimit),
		SSE:            stream.NewSSEHandler(publisher, cfg.KeepaliveInterval, st.logger),
		WebSocket:      stream.NewWebSocketHandler(publisher, cfg.KeepaliveInterval, cfg.AllowedOrigins, st.logger),
		Health:         api.NewHealthHandlers(api.HealthHandlersConfig{Checkers: append(checkers, st.checkers...)}),
		Metrics:        st.metricsHandler(),
		AllowedOrigins: cfg.AllowedOrigins,
	})

	return &dashboard{
		handler:   st.handler(mux, api.DashboardRoutes, api.HealthPaths, limiter),
		watcher:   watcher,
		publisher: publisher,
	}, nil
}

// runDashboard runs the watcher and the server until ctx is canceled or
// either of them fails.
func runDashboard(ctx context.Context, st *stack) error {
	d, err := buildDashboard(ctx, st)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	srv := newServer(st.cfg.DashboardPort, d.handler, 15*time.Second)
	// Streams end when the group stops; Shutdown alone would wait on them.
	srv.BaseContext = func(net.Listener) context.Context { return gctx }

	g.Go(func() error {
		return d.watcher.Run(gctx)
	})
	g.Go(func() error {
		return serve(gctx, st.logger, srv)
	})
	return g.Wait()
}
