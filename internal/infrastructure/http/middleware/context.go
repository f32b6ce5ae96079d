package middleware

import (
	"github.com/gin-gonic/gin"
)

const (
	ContextKeyRequestID      = "request_id"
	ContextKeyService        = "target_service"
	ContextKeyOriginalPath   = "original_path"
	ContextKeyDownstreamPath = "downstream_path"
)

func ServiceName(c *gin.Context) string {
	return c.GetString(ContextKeyService)
}

func OriginalPath(c *gin.Context) string {
	return c.GetString(ContextKeyOriginalPath)
}

// DownstreamPath is the path forwarded to the instance, falling back to the
// inbound path when no route tagged the request.
func DownstreamPath(c *gin.Context) string {
	if p := c.GetString(ContextKeyDownstreamPath); p != "" {
		return p
	}
	return c.Request.URL.Path
}

func RequestIDFrom(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}
