package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/apascualco/careway/internal/domain"
	"github.com/apascualco/careway/internal/infrastructure/auth"
	"github.com/apascualco/careway/internal/infrastructure/observability"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

type verifierFunc func(ctx context.Context, creds auth.Credentials) error

func (f verifierFunc) Verify(ctx context.Context, creds auth.Credentials) error { return f(ctx, creds) }

func TestAuth(t *testing.T) {
	var seen auth.Credentials
	verifier := verifierFunc(func(_ context.Context, creds auth.Credentials) error {
		seen = creds
		if creds.Token == "good" {
			return nil
		}
		return auth.ErrInvalidSession
	})

	router := gin.New()
	router.GET("/p", Auth(verifier), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name    string
		header  string
		want    int
		message string
	}{
		{name: "valid", header: "Bearer good", want: http.StatusOK},
		{name: "lower case scheme", header: "bearer good", want: http.StatusOK},
		{name: "missing", want: http.StatusUnauthorized, message: "Authentication required"},
		{name: "wrong scheme", header: "Basic Zm9vOmJhcg==", want: http.StatusUnauthorized, message: "Authentication required"},
		{name: "rejected", header: "Bearer bad", want: http.StatusUnauthorized, message: "Invalid or expired session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			req.Header.Set(auth.HeaderSessionID, "sess_1")
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.message != "" {
				e := decode(t, w)
				assert.Equal(t, "error", e.Status)
				assert.Equal(t, tt.message, e.Message)
			}
		})
	}

	assert.Equal(t, "sess_1", seen.SessionID)
}

func TestAuth_DenyAllFailsClosed(t *testing.T) {
	router := gin.New()
	router.GET("/p", Auth(auth.DenyAll{}), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer anything")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTag(t *testing.T) {
	route := domain.RouteConfig{Path: "/api/booking/*", Service: "booking-service", StripPrefix: "/api"}

	var service, original, downstream string
	router := gin.New()
	router.GET("/api/booking/*path", Tag(route), func(c *gin.Context) {
		service = ServiceName(c)
		original = OriginalPath(c)
		downstream = DownstreamPath(c)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/booking/12", nil))

	assert.Equal(t, "booking-service", service)
	assert.Equal(t, "/api/booking/12", original)
	assert.Equal(t, "/booking/12", downstream)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	var fromCtx string
	router.GET("/r", func(c *gin.Context) { fromCtx = RequestIDFrom(c) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/r", nil))
	generated := w.Header().Get(HeaderRequestID)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, fromCtx)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/r", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery())
	router.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	e := decode(t, w)
	assert.Equal(t, "internal_error", e.Error)
	assert.NotContains(t, w.Body.String(), "kaboom")
}

func TestAbortWithGatewayError(t *testing.T) {
	router := gin.New()
	router.GET("/unavailable", func(c *gin.Context) {
		AbortWithGatewayError(c, domain.NewUnavailableError("svc"))
	})
	router.GET("/plain", func(c *gin.Context) {
		AbortWithGatewayError(c, errors.New("dial tcp: secret detail"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unavailable", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "service_unavailable", decode(t, w).Error)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}

type memoryCache struct {
	mu      sync.Mutex
	enabled bool
	entries map[string]domain.CacheEntry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{enabled: true, entries: make(map[string]domain.CacheEntry)}
}

func (m *memoryCache) Enabled() bool { return m.enabled }

func (m *memoryCache) GetJSON(_ context.Context, key string, out any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return false
	}
	*out.(*domain.CacheEntry) = e
	return true
}

func (m *memoryCache) Write(key string, v any, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = v.(domain.CacheEntry)
}

func (m *memoryCache) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.entries {
		out = append(out, k)
	}
	return out
}

func setupCacheRouter(store *memoryCache, hits *int) *gin.Engine {
	route := domain.RouteConfig{Path: "/api/test-service/*", Service: "test-service", StripPrefix: "/api"}
	cfg := CacheConfig{Reader: store, Writer: store, TTL: time.Minute, Recorder: observability.Noop{}}

	router := gin.New()
	router.Any("/api/test-service/*path", Cache(cfg, route), func(c *gin.Context) {
		*hits++
		switch c.Param("path") {
		case "/missing":
			c.JSON(http.StatusNotFound, gin.H{"message": "nope"})
		default:
			c.JSON(http.StatusOK, gin.H{"n": *hits})
		}
	})
	return router
}

func TestCache_MissThenHit(t *testing.T) {
	store := newMemoryCache()
	hits := 0
	router := setupCacheRouter(store, &hits)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test-service/items?page=2", nil))
	assert.Equal(t, "MISS", w.Header().Get(HeaderCache))
	assert.JSONEq(t, `{"n":1}`, w.Body.String())
	assert.Equal(t, []string{"test-service:/test-service/items?page=2"}, store.keys())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test-service/items?page=2", nil))
	assert.Equal(t, "HIT", w.Header().Get(HeaderCache))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"n":1}`, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, 1, hits)
}

func TestCache_NonGetBypasses(t *testing.T) {
	store := newMemoryCache()
	hits := 0
	router := setupCacheRouter(store, &hits)

	for range 2 {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/test-service/items", nil))
		assert.Empty(t, w.Header().Get(HeaderCache))
	}
	assert.Equal(t, 2, hits)
	assert.Empty(t, store.keys())
}

func TestCache_ErrorsAreNotStored(t *testing.T) {
	store := newMemoryCache()
	hits := 0
	router := setupCacheRouter(store, &hits)

	for range 2 {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test-service/missing", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "MISS", w.Header().Get(HeaderCache))
	}
	assert.Equal(t, 2, hits)
}

func TestCache_Disabled(t *testing.T) {
	store := newMemoryCache()
	store.enabled = false
	hits := 0
	router := setupCacheRouter(store, &hits)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test-service/items", nil))
	assert.Empty(t, w.Header().Get(HeaderCache))
	assert.Empty(t, store.keys())
}
