// Package pep implements the policy enforcement point: every inbound request is
// held until the decision service returns a verdict, then either forwarded to the
// downstream target unchanged or answered locally.
package pep

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/sentinel/internal/decision"
	"github.com/onnwee/sentinel/internal/middleware"
	"github.com/onnwee/sentinel/internal/tracing"
)

// Response bodies for requests answered by the dispatcher itself.
const (
	DeniedBody     = "Access denied by policy\n"
	ErrorBody      = "Internal proxy error\n"
	BadGatewayBody = "Bad gateway\n"
)

// Error codes attached to the request context for the logging middleware.
const (
	errCodeDenied              = "policy_denied"
	errCodeDecisionUnreachable = "decision_unreachable"
	errCodeDecisionMalformed   = "decision_malformed"
	errCodeUpstream            = "upstream_unavailable"
)

// Decider returns a verdict for a request. *decision.Client implements it.
type Decider interface {
	Decide(ctx context.Context, req decision.Request) (bool, error)
}

// State is a step of the per-request enforcement state machine.
type State string

// Enforcement states. Allowed, Denied and Errored are terminal. Each
// transition is recorded as a "pep.state" event on the request span.
const (
	StateReceived State = "received"
	StateDeciding State = "deciding"
	StateAllowed  State = "allowed"
	StateDenied   State = "denied"
	StateErrored  State = "errored"
)

// Config configures a Dispatcher.
type Config struct {
	// Target is the downstream application allowed requests are forwarded to.
	Target *url.URL
	// ActorHeader names the request header carrying the caller's identity claim.
	ActorHeader string
	// Logger receives decision logs. Defaults to slog.Default().
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *Metrics
	// Transport overrides the transport used to reach the target.
	Transport http.RoundTripper
}

// Dispatcher is an http.Handler that enforces decision service verdicts.
// Each request runs its own state machine; requests never wait on each other.
type Dispatcher struct {
	decider     Decider
	proxy       *httputil.ReverseProxy
	actorHeader string
	logger      *slog.Logger
	metrics     *Metrics
}

// NewDispatcher creates a Dispatcher forwarding allowed requests to cfg.Target.
func NewDispatcher(decider Decider, cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	actorHeader := cfg.ActorHeader
	if actorHeader == "" {
		actorHeader = "X-User"
	}

	d := &Dispatcher{
		decider:     decider,
		actorHeader: actorHeader,
		logger:      logger,
		metrics:     cfg.Metrics,
	}

	target := cfg.Target
	d.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			// Keep the caller's Host header; the target sees the request as sent.
			pr.Out.Host = pr.In.Host
		},
		Transport:    cfg.Transport,
		ErrorHandler: d.upstreamError,
	}
	return d
}

// ServeHTTP runs RECEIVED -> DECIDING -> {ALLOWED, DENIED, ERRORED}.
// Nothing is forwarded or written before the verdict is known.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := decision.NewRequest(r.Method, r.URL.RequestURI(), r.Header.Get(d.actorHeader))
	ctx := middleware.SetActor(r.Context(), req.User)
	middleware.UpdateResponseContext(w, ctx)
	enter(ctx, StateReceived)

	enter(ctx, StateDeciding)
	allowed, err := d.decide(ctx, req)

	// The caller may have gone away while we waited; the verdict is discarded.
	if ctxErr := r.Context().Err(); ctxErr != nil {
		d.record(OutcomeCanceled)
		d.logger.DebugContext(ctx, "caller disconnected before decision completed",
			"method", req.Method, "path", req.Path, "user", req.User, "error", ctxErr)
		return
	}

	state := d.next(allowed, err)
	enter(ctx, state)

	switch state {
	case StateAllowed:
		d.record(OutcomeAllowed)
		d.logger.InfoContext(ctx, "request allowed", "method", req.Method, "path", req.Path, "user", req.User)
		d.proxy.ServeHTTP(w, r.WithContext(ctx))

	case StateDenied:
		d.record(OutcomeDenied)
		d.logger.InfoContext(ctx, "request denied", "method", req.Method, "path", req.Path, "user", req.User)
		middleware.UpdateResponseContext(w, middleware.SetErrorCode(ctx, errCodeDenied))
		writePlain(w, http.StatusForbidden, DeniedBody)

	default:
		d.record(OutcomeErrored)
		code := errCodeDecisionUnreachable
		if errors.Is(err, decision.ErrMalformed) {
			code = errCodeDecisionMalformed
		}
		d.logger.ErrorContext(ctx, "decision failed",
			"method", req.Method, "path", req.Path, "user", req.User, "error_kind", code, "error", err)
		middleware.UpdateResponseContext(w, middleware.SetErrorCode(ctx, code))
		writePlain(w, http.StatusInternalServerError, ErrorBody)
	}
}

// next is the DECIDING transition.
func (d *Dispatcher) next(allowed bool, err error) State {
	switch {
	case err != nil:
		return StateErrored
	case allowed:
		return StateAllowed
	default:
		return StateDenied
	}
}

func enter(ctx context.Context, s State) {
	tracing.AddEvent(ctx, "pep.state", attribute.String("pep.state", string(s)))
}

func (d *Dispatcher) decide(ctx context.Context, req decision.Request) (allowed bool, err error) {
	ctx, end := tracing.StartSpan(ctx, "pep.decide",
		attribute.String("pep.method", req.Method),
		attribute.String("pep.user", req.User),
	)
	defer func() {
		tracing.SetAttributes(ctx, attribute.Bool("pep.allowed", allowed))
		end(err)
	}()

	start := time.Now()
	allowed, err = d.decider.Decide(ctx, req)
	if d.metrics != nil {
		d.metrics.ObserveDecisionDuration(time.Since(start).Seconds())
	}
	return allowed, err
}

func (d *Dispatcher) record(outcome string) {
	if d.metrics != nil {
		d.metrics.IncDecision(outcome)
	}
}

// upstreamError handles transport failures after an ALLOW verdict.
func (d *Dispatcher) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	if d.metrics != nil {
		d.metrics.IncUpstreamErrors()
	}
	d.logger.ErrorContext(r.Context(), "downstream target unavailable",
		"method", r.Method, "path", r.URL.RequestURI(), "error", err)
	middleware.UpdateResponseContext(w, middleware.SetErrorCode(r.Context(), errCodeUpstream))
	writePlain(w, http.StatusBadGateway, BadGatewayBody)
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
