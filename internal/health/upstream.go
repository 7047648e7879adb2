package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrURLNotConfigured is returned by UpstreamChecker when it has no URL.
var ErrURLNotConfigured = errors.New("upstream url not configured")

// UpstreamChecker reports whether an HTTP service answers at all. Any status
// below 500 counts as reachable: the PEP's downstream target usually has no
// dedicated health path and may well answer / with 404.
type UpstreamChecker struct {
	url    string
	client *http.Client
}

// NewUpstreamChecker creates a checker that issues GET requests to url.
func NewUpstreamChecker(url string) *UpstreamChecker {
	return &UpstreamChecker{
		url: url,
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// HealthCheck performs one GET request.
func (u *UpstreamChecker) HealthCheck(ctx context.Context) error {
	if u.url == "" {
		return ErrURLNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", u.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s unhealthy: unexpected status code %d", u.url, resp.StatusCode)
	}
	return nil
}
