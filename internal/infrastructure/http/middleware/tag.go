package middleware

import (
	"github.com/apascualco/careway/internal/domain"
	"github.com/gin-gonic/gin"
)

// Tag attaches the target service and the paths the proxy needs.
func Tag(route domain.RouteConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		c.Set(ContextKeyService, route.Service)
		c.Set(ContextKeyOriginalPath, path)
		c.Set(ContextKeyDownstreamPath, route.DownstreamPath(path))
		c.Next()
	}
}
