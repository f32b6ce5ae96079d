package domain

import (
	"strconv"
	"strings"
	"time"
)

// CacheEntry is a stored GET response.
type CacheEntry struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	// ContentEncoding is the upstream Content-Encoding of Body, empty for identity.
	ContentEncoding string    `json:"contentEncoding,omitempty"`
	Body            []byte    `json:"body"`
	StoredAt        time.Time `json:"storedAt"`
}

// CacheKey builds the response cache key for a service and the request path
// (query string included).
func CacheKey(service, path string) string {
	return service + ":" + path
}

// AcceptableTo reports whether a client sending acceptEncoding can take the
// stored body as is.
func (e *CacheEntry) AcceptableTo(acceptEncoding string) bool {
	enc := strings.ToLower(strings.TrimSpace(e.ContentEncoding))
	if enc == "" || enc == "identity" {
		return true
	}

	wildcard := false
	for _, part := range strings.Split(acceptEncoding, ",") {
		coding, params, _ := strings.Cut(part, ";")
		coding = strings.ToLower(strings.TrimSpace(coding))
		if coding != enc && coding != "*" {
			continue
		}
		ok := !rejectsQuality(params)
		if coding == enc {
			return ok
		}
		wildcard = ok
	}
	return wildcard
}

func rejectsQuality(params string) bool {
	for _, p := range strings.Split(params, ";") {
		name, value, found := strings.Cut(strings.TrimSpace(p), "=")
		if !found || !strings.EqualFold(strings.TrimSpace(name), "q") {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		return err == nil && q == 0
	}
	return false
}

func (e *CacheEntry) IsCacheable() bool {
	return e.Status >= 200 && e.Status < 300 && !strings.Contains(e.ContentType, "text/event-stream")
}
