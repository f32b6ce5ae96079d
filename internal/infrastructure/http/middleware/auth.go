package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/apascualco/careway/internal/infrastructure/auth"
	"github.com/gin-gonic/gin"
)

const (
	HeaderAuthorization = "Authorization"
	BearerPrefix        = "Bearer "
)

// Auth fails closed: anything but a positive verdict from the verifier is 401.
func Auth(verifier auth.SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			AbortWithError(c, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}

		creds := auth.Credentials{
			Token:     token,
			SessionID: c.GetHeader(auth.HeaderSessionID),
		}
		if err := verifier.Verify(c.Request.Context(), creds); err != nil {
			slog.DebugContext(c.Request.Context(), "session rejected",
				slog.String("path", c.Request.URL.Path),
				slog.String("request_id", RequestIDFrom(c)),
				slog.Any("error", err),
			)
			AbortWithError(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired session")
			return
		}

		c.Next()
	}
}

func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader(HeaderAuthorization)
	if len(header) < len(BearerPrefix) || !strings.EqualFold(header[:len(BearerPrefix)], BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(BearerPrefix):])
}
