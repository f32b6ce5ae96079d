package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxRetries = 5
	defaultBackoff    = time.Second
	maxBackoff        = 30 * time.Second
)

// RegistryClient lets a backend service announce itself to the gateway and
// withdraw on shutdown.
type RegistryClient struct {
	gatewayURL string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger

	mu         sync.RWMutex
	instanceID string
}

type Option func(*RegistryClient)

func WithLogger(logger *slog.Logger) Option {
	return func(c *RegistryClient) {
		c.logger = logger
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *RegistryClient) {
		c.httpClient = hc
	}
}

// WithRetry sets the retry count and the initial backoff, doubled per attempt.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(c *RegistryClient) {
		c.maxRetries = maxRetries
		c.backoff = backoff
	}
}

func NewRegistryClient(gatewayURL string, opts ...Option) *RegistryClient {
	c := &RegistryClient{
		gatewayURL: strings.TrimSuffix(gatewayURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RegistryClient) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	var resp *RegisterResponse
	err := c.retryWithBackoff(ctx, func() error {
		var err error
		resp, err = c.doRegister(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.instanceID = resp.InstanceID
	c.mu.Unlock()

	c.logger.Info("service registered",
		slog.String("service", resp.Service),
		slog.String("instance_id", resp.InstanceID),
	)
	return resp, nil
}

func (c *RegistryClient) doRegister(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.gatewayURL+"/registry/services", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusCreated {
		return nil, statusError(httpResp.StatusCode, respBody)
	}

	var resp RegisterResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// Deregister withdraws the registered instance. It is a no-op before a
// successful Register.
func (c *RegistryClient) Deregister(ctx context.Context) error {
	instanceID := c.InstanceID()
	if instanceID == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.gatewayURL+"/registry/services/"+url.PathEscape(instanceID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send deregister: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		respBody, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, respBody)
	}

	c.mu.Lock()
	c.instanceID = ""
	c.mu.Unlock()

	c.logger.Info("service deregistered", slog.String("instance_id", instanceID))
	return nil
}

func (c *RegistryClient) InstanceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instanceID
}

func statusError(status int, body []byte) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			message = payload.Message
		} else if payload.Error != "" {
			message = payload.Error
		}
	}

	if status >= 400 && status < 500 {
		return &RejectedError{Status: status, Message: message}
	}
	return fmt.Errorf("gateway answered %d: %s", status, message)
}

func (c *RegistryClient) retryWithBackoff(ctx context.Context, fn func() error) error {
	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var rejected *RejectedError
		if errors.As(err, &rejected) {
			return err
		}

		if attempt < c.maxRetries {
			c.logger.Warn("operation failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", c.maxRetries),
				slog.Duration("backoff", backoff),
				slog.Any("error", err),
			)

			select {
			case <-time.After(backoff):
				backoff = min(backoff*2, maxBackoff)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", c.maxRetries, lastErr)
}
