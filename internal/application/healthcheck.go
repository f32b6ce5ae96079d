package application

import (
	"context"
	"io"
	"net/http"
	"time"
)

const DefaultHealthCheckTimeout = 5 * time.Second

type HealthChecker interface {
	Check(ctx context.Context, url string) bool
}

// HTTPHealthChecker probes a URL with a bounded GET. Only 200 is healthy.
type HTTPHealthChecker struct {
	client  *http.Client
	timeout time.Duration
}

func NewHTTPHealthChecker(timeout time.Duration) *HTTPHealthChecker {
	if timeout <= 0 {
		timeout = DefaultHealthCheckTimeout
	}
	return &HTTPHealthChecker{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (h *HTTPHealthChecker) Check(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode == http.StatusOK
}
