package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/apascualco/careway/internal/domain"
	"github.com/apascualco/careway/internal/infrastructure/observability"
	"github.com/gin-gonic/gin"
)

const (
	HeaderCache = "X-Cache"

	maxCachedBody = 1 << 20
)

type CacheReader interface {
	Enabled() bool
	GetJSON(ctx context.Context, key string, out any) bool
}

type CacheWriter interface {
	Write(key string, v any, ttl time.Duration)
}

type CacheConfig struct {
	Reader   CacheReader
	Writer   CacheWriter
	TTL      time.Duration
	Recorder observability.Recorder
}

// Cache serves GET requests for route from the response cache and stores
// 2xx misses asynchronously. Other methods pass straight through. An entry
// stored with a Content-Encoding the client does not accept is treated as a
// miss and replaced by the fresh response.
func Cache(cfg CacheConfig, route domain.RouteConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet || !cfg.Reader.Enabled() {
			c.Next()
			return
		}

		key := cacheKey(route, c.Request)

		var entry domain.CacheEntry
		if cfg.Reader.GetJSON(c.Request.Context(), key, &entry) &&
			entry.AcceptableTo(c.GetHeader("Accept-Encoding")) {
			cfg.Recorder.CacheLookup(true)
			contentType := entry.ContentType
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			if entry.ContentEncoding != "" {
				c.Header("Content-Encoding", entry.ContentEncoding)
				c.Header("Vary", "Accept-Encoding")
			}
			c.Header(HeaderCache, "HIT")
			c.Data(entry.Status, contentType, entry.Body)
			c.Abort()
			return
		}

		cfg.Recorder.CacheLookup(false)
		c.Header(HeaderCache, "MISS")

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()
		c.Writer = w.ResponseWriter

		if w.overflow {
			return
		}
		stored := domain.CacheEntry{
			Status:          w.Status(),
			ContentType:     w.Header().Get("Content-Type"),
			ContentEncoding: w.Header().Get("Content-Encoding"),
			Body:            w.body.Bytes(),
			StoredAt:        time.Now().UTC(),
		}
		if !stored.IsCacheable() {
			return
		}
		cfg.Writer.Write(key, stored, cfg.TTL)
	}
}

func cacheKey(route domain.RouteConfig, r *http.Request) string {
	path := route.DownstreamPath(r.URL.Path)
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	return domain.CacheKey(route.Service, path)
}

// captureWriter tees the response body up to maxCachedBody.
type captureWriter struct {
	gin.ResponseWriter
	body     bytes.Buffer
	overflow bool
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.capture(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.capture([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

func (w *captureWriter) capture(b []byte) {
	if w.overflow {
		return
	}
	if w.body.Len()+len(b) > maxCachedBody {
		w.overflow = true
		w.body.Reset()
		return
	}
	w.body.Write(b)
}
