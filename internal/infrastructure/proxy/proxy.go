package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/apascualco/careway/internal/domain"
	"github.com/apascualco/careway/internal/infrastructure/http/middleware"
	"github.com/gin-gonic/gin"
)

const (
	DefaultTimeout = 10 * time.Second

	HeaderServedBy = "X-Served-By"

	maxErrorBody = 64 << 10
)

var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

type Balancer interface {
	GetInstance(service string) (*domain.ServiceInstance, error)
	ReleaseInstance(inst *domain.ServiceInstance)
}

type Recorder interface {
	ObserveUpstream(service string, status int, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveUpstream(string, int, time.Duration) {}

type Config struct {
	Timeout   time.Duration
	Transport http.RoundTripper
	Recorder  Recorder
}

// Handler forwards a tagged request to one balanced instance of its target
// service and relays the answer.
type Handler struct {
	balancer  Balancer
	timeout   time.Duration
	transport http.RoundTripper
	recorder  Recorder
}

func NewHandler(balancer Balancer, cfg Config) *Handler {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Handler{
		balancer:  balancer,
		timeout:   timeout,
		transport: transport,
		recorder:  recorder,
	}
}

func (h *Handler) Handle(c *gin.Context) {
	service := middleware.ServiceName(c)
	if service == "" {
		middleware.AbortWithError(c, http.StatusInternalServerError, "internal_error", "Target service not specified")
		return
	}

	instance, err := h.balancer.GetInstance(service)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "no instance available",
			slog.String("service", service),
			slog.Any("error", err),
		)
		middleware.AbortWithGatewayError(c, err)
		return
	}
	defer h.balancer.ReleaseInstance(instance)

	target, err := url.Parse(instance.URL)
	if err != nil || target.Host == "" {
		middleware.AbortWithGatewayError(c, domain.NewUpstreamError(0, "invalid instance url", err))
		return
	}

	c.Header(HeaderServedBy, instance.URL)

	// The downstream call is bounded by the proxy timeout, not by the client
	// connection.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.timeout)
	defer cancel()

	start := time.Now()
	status := 0
	rp := &httputil.ReverseProxy{
		Transport: h.transport,
		Director:  h.director(c, target),
		ModifyResponse: func(resp *http.Response) error {
			status = resp.StatusCode
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			return upstreamStatusError(resp)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			gwErr := classify(err)
			status = gwErr.Status
			slog.WarnContext(r.Context(), "proxy error",
				slog.String("service", service),
				slog.String("instance_id", instance.ID),
				slog.String("url", r.URL.String()),
				slog.Int("status", gwErr.Status),
				slog.Any("error", err),
			)
			middleware.AbortWithGatewayError(c, gwErr)
		},
	}

	rp.ServeHTTP(c.Writer, c.Request.WithContext(ctx))
	h.recorder.ObserveUpstream(service, status, time.Since(start))
}

func (h *Handler) director(c *gin.Context, target *url.URL) func(*http.Request) {
	downstreamPath := middleware.DownstreamPath(c)
	inboundHost := c.Request.Host
	tls := c.Request.TLS != nil

	return func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.URL.Path = joinPath(target.Path, downstreamPath)
		req.URL.RawPath = ""
		req.Host = target.Host

		for _, hdr := range hopByHopHeaders {
			req.Header.Del(hdr)
		}

		// X-Forwarded-For is appended by ReverseProxy from RemoteAddr.
		if inboundHost != "" {
			req.Header.Set("X-Forwarded-Host", inboundHost)
		}
		if req.Header.Get("X-Forwarded-Proto") == "" {
			proto := "http"
			if tls {
				proto = "https"
			}
			req.Header.Set("X-Forwarded-Proto", proto)
		}
	}
}

func joinPath(base, p string) string {
	base = strings.TrimSuffix(base, "/")
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return base + p
}

// upstreamStatusError turns a non-2xx answer into a relayed error, keeping
// the downstream message when the body carries one.
func upstreamStatusError(resp *http.Response) error {
	message := http.StatusText(resp.StatusCode)

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Message != "":
			message = payload.Message
		case payload.Error != "":
			message = payload.Error
		}
	}

	return domain.NewUpstreamError(resp.StatusCode, message,
		fmt.Errorf("%w: downstream answered %d", domain.ErrUpstream, resp.StatusCode))
}

func classify(err error) *domain.GatewayError {
	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.GatewayError{
			Status:  http.StatusGatewayTimeout,
			Code:    "gateway_timeout",
			Message: "upstream did not answer in time",
			Err:     err,
		}
	}
	return domain.NewUpstreamError(0, "failed to reach upstream service", err)
}
