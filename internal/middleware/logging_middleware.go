// internal/middleware/logging_middleware.go
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alexconrey/webmux/internal/utils"
)

// LoggingMiddleware logs every request except probes and metric scrapes
func LoggingMiddleware(logger *utils.ServiceLogger, skipPaths ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		path := c.Request.URL.Path
		for _, p := range skipPaths {
			if p != "" && strings.HasPrefix(path, p) {
				return
			}
		}

		logger.LogAPIRequest(
			c.Request.Method,
			path,
			c.Request.UserAgent(),
			c.ClientIP(),
			utils.GetRequestID(c),
			c.Writer.Status(),
			time.Since(startTime),
		)
	}
}
