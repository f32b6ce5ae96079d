package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type CacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) bool
	Clear(ctx context.Context) bool
}

type CacheHandler struct {
	cache CacheInvalidator
}

func NewCacheHandler(cache CacheInvalidator) *CacheHandler {
	return &CacheHandler{cache: cache}
}

type cacheResult struct {
	Success bool   `json:"success"`
	Pattern string `json:"pattern,omitempty"`
}

// Invalidate deletes cached responses whose key matches the glob pattern,
// e.g. "booking-service:*".
func (h *CacheHandler) Invalidate(c *gin.Context) {
	pattern := strings.TrimPrefix(c.Param("pattern"), "/")
	if pattern == "" {
		c.JSON(http.StatusBadRequest, cacheResult{Success: false})
		return
	}
	ok := h.cache.DeleteByPattern(c.Request.Context(), pattern)
	c.JSON(http.StatusOK, cacheResult{Success: ok, Pattern: pattern})
}

func (h *CacheHandler) Clear(c *gin.Context) {
	ok := h.cache.Clear(c.Request.Context())
	c.JSON(http.StatusOK, cacheResult{Success: ok})
}
