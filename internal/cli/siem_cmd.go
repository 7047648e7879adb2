package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/onnwee/sentinel/internal/api"
	"github.com/onnwee/sentinel/internal/middleware"
	"github.com/onnwee/sentinel/internal/siem"
)

func newSIEMCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "siem",
		Short: "Run the in-memory security event sink",
		Long:  "Accepts security events on POST /ingest, numbers them, raises alerts and serves the collected log and statistics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			st, err := newStack(cmd, "siem")
			if err != nil {
				return err
			}
			defer st.close()

			handler, err := buildSIEMHandler(ctx, st)
			if err != nil {
				return err
			}
			return serve(ctx, st.logger, newServer(st.cfg.SIEMPort, handler, 15*time.Second))
		},
	}
}

func buildSIEMHandler(ctx context.Context, st *stack) (http.Handler, error) {
	metrics := siem.NewMetrics()
	if err := metrics.Register(st.registry); err != nil {
		return nil, fmt.Errorf("register siem metrics: %w", err)
	}

	store := siem.NewStore(siem.WithLogger(st.logger), siem.WithMetrics(metrics))

	limiter, err := st.rateLimiter(ctx, middleware.IPKeyFunc(), api.ExemptPaths...)
	if err != nil {
		return nil, err
	}

	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{Checkers: st.checkers})
	mux := api.NewSIEMMux(api.NewSIEMHandlers(store), healthHandlers, st.metricsHandler())
	return st.handler(mux, api.SIEMRoutes, api.HealthPaths, limiter), nil
}
