package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/sentinel/internal/api"
	"github.com/onnwee/sentinel/internal/decision"
	"github.com/onnwee/sentinel/internal/health"
	"github.com/onnwee/sentinel/internal/middleware"
	"github.com/onnwee/sentinel/internal/pep"
)

// pepWriteTimeout covers the decision call plus the proxied response.
const pepWriteTimeout = 60 * time.Second

func newPEPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pep",
		Short: "Run the policy enforcement proxy",
		Long: "Holds every request until the decision service returns a verdict, then forwards it to the target or rejects it.\n" +
			"Probes and metrics are served on a separate admin port and are never proxied.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			st, err := newStack(cmd, "pep")
			if err != nil {
				return err
			}
			defer st.close()

			return runPEP(ctx, st)
		},
	}
}

// pepHandlers are the two listeners of the enforcement point. proxy sends
// every request through the dispatcher; admin serves probes and metrics.
type pepHandlers struct {
	proxy http.Handler
	admin http.Handler
}

func buildPEPHandlers(ctx context.Context, st *stack) (*pepHandlers, error) {
	cfg := st.cfg

	target, err := url.Parse(cfg.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}

	client := decision.NewClient(cfg.DecisionURL, cfg.DecisionTimeout)

	metrics := pep.NewMetrics()
	if err := metrics.Register(st.registry); err != nil {
		return nil, fmt.Errorf("register pep metrics: %w", err)
	}

	dispatcher := pep.NewDispatcher(client, pep.Config{
		Target:      target,
		ActorHeader: cfg.ActorHeader,
		Logger:      st.logger,
		Metrics:     metrics,
	})

	limiter, err := st.rateLimiter(ctx, middleware.HeaderKeyFunc(cfg.ActorHeader))
	if err != nil {
		return nil, err
	}

	checkers := []api.NamedChecker{
		{Name: "decision_service", Checker: client},
		{Name: "target", Checker: health.NewUpstreamChecker(cfg.TargetURL)},
	}
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		Checkers: append(checkers, st.checkers...),
	})

	st.logger.Info("enforcing decisions",
		"decision_url", cfg.DecisionURL,
		"target_url", cfg.TargetURL,
		"actor_header", cfg.ActorHeader,
		"admin_port", cfg.PEPAdminPort,
	)

	return &pepHandlers{
		proxy: st.handler(dispatcher, nil, nil, limiter),
		admin: st.handler(api.NewPEPAdminMux(healthHandlers, st.metricsHandler()), api.PEPAdminRoutes, api.HealthPaths, nil),
	}, nil
}

// runPEP serves the proxy and admin listeners until ctx is canceled or
// either of them fails.
func runPEP(ctx context.Context, st *stack) error {
	h, err := buildPEPHandlers(ctx, st)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(gctx, st.logger.With("listener", "proxy"), newServer(st.cfg.PEPPort, h.proxy, pepWriteTimeout))
	})
	g.Go(func() error {
		return serve(gctx, st.logger.With("listener", "admin"), newServer(st.cfg.PEPAdminPort, h.admin, 15*time.Second))
	})
	return g.Wait()
}
