package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultVerifyTimeout = 5 * time.Second

// HTTPVerifier asks an external session service. A 200 answer means valid,
// anything else (including transport failure) means invalid.
type HTTPVerifier struct {
	url    string
	client *http.Client
}

func NewHTTPVerifier(url string, timeout time.Duration) *HTTPVerifier {
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	return &HTTPVerifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, creds Credentials) error {
	if creds.Token == "" {
		return ErrMissingToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	if creds.SessionID != "" {
		req.Header.Set(HeaderSessionID, creds.SessionID)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: verifier answered %d", ErrInvalidSession, resp.StatusCode)
	}
	return nil
}
