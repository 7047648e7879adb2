// Package decision is the client for the external policy decision service.
// It speaks the OPA data API shape: the request carries an "input" document and
// the verdict is read from the top-level "result" field of the response.
package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// AnonymousUser is the actor used when the caller supplies none.
const AnonymousUser = "anonymous"

// maxResponseBytes bounds how much of a decision response is read.
const maxResponseBytes = 1 << 20

var (
	// ErrUnreachable is returned when the decision service cannot be reached:
	// connection refused, DNS failure, timeout or a broken response stream.
	ErrUnreachable = errors.New("decision service unreachable")

	// ErrMalformed is returned when the decision service answered but the answer
	// cannot be used: non-2xx status, invalid JSON, or no "result" field.
	ErrMalformed = errors.New("decision response malformed")
)

// Request carries the request attributes the policy is evaluated against.
type Request struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	User   string `json:"user"`
}

// NewRequest builds a Request, substituting AnonymousUser for an empty actor.
func NewRequest(method, path, actor string) Request {
	if actor == "" {
		actor = AnonymousUser
	}
	return Request{Method: method, Path: path, User: actor}
}

type requestBody struct {
	Input Request `json:"input"`
}

type responseBody struct {
	Result json.RawMessage `json:"result"`
}

// Client calls the decision service. It is safe for concurrent use.
type Client struct {
	url        string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. The caller owns its timeout
// and transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Client posting to url. Each call is bounded by timeout;
// the transport propagates the caller's trace context.
func NewClient(url string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		url: url,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decide asks the decision service whether req is allowed.
// It returns true only when the response's result is the JSON literal true.
// Any other present result is a deny. Failures are returned as errors wrapping
// ErrUnreachable or ErrMalformed; there are no retries.
func (c *Client) Decide(ctx context.Context, req Request) (bool, error) {
	payload, err := json.Marshal(requestBody{Input: req})
	if err != nil {
		return false, fmt.Errorf("encode decision request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false, fmt.Errorf("%w: reading response: %v", ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("%w: unexpected status %d", ErrMalformed, resp.StatusCode)
	}

	var decoded responseBody
	if err := json.Unmarshal(body, &decoded); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(decoded.Result) == 0 {
		return false, fmt.Errorf("%w: missing result field", ErrMalformed)
	}

	return bytes.Equal(bytes.TrimSpace(decoded.Result), []byte("true")), nil
}

// HealthCheck reports whether the decision service answers HTTP at all.
// Any status code counts as reachable; policy evaluation is not exercised.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return resp.Body.Close()
}
