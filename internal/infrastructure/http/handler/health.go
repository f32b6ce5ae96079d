package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func HealthHandler(startTime time.Time, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:  "healthy",
			Version: version,
			Uptime:  time.Since(startTime).Truncate(time.Second).String(),
		})
	}
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type ReadyResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis"`
}

// ReadyHandler reports ready only while the cache store answers.
func ReadyHandler(store Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			slog.WarnContext(c.Request.Context(), "readiness check failed", slog.Any("error", err))
			c.JSON(http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Redis: "down"})
			return
		}
		c.JSON(http.StatusOK, ReadyResponse{Status: "ready", Redis: "up"})
	}
}
