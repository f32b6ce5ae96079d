package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/apascualco/careway/internal/domain"
	"github.com/apascualco/careway/internal/infrastructure/observability"
	"github.com/apascualco/careway/internal/infrastructure/ratelimit"
	"github.com/gin-gonic/gin"
)

const rateLimitMessage = "Too many requests, please try again later."

// RateLimit applies the route's sliding window per client ip. Limiter
// failures let the request through.
func RateLimit(limiter ratelimit.RateLimiter, route domain.RouteConfig, recorder observability.Recorder) gin.HandlerFunc {
	limit := route.RateLimit
	keyPrefix := "route:" + route.Method + ":" + route.Path + ":ip:"

	return func(c *gin.Context) {
		result, err := limiter.Allow(c.Request.Context(), keyPrefix+c.ClientIP(), limit.Max, limit.Window)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "rate limiter unavailable",
				slog.String("route", route.Path),
				slog.Any("error", err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retry := int(math.Ceil(time.Until(result.ResetAt).Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			recorder.RateLimited(route.Service)
			AbortWithError(c, http.StatusTooManyRequests, "rate_limit_exceeded", rateLimitMessage)
			return
		}

		c.Next()
	}
}
