package server

import (
	"net/http"
	"time"

	"liyaqa/internal/logger"
	"liyaqa/internal/tenant"

	"github.com/gin-gonic/gin"
)

// RequestLoggingMiddleware logs every request after it completes. When the
// auth middleware has bound a tenant scope, the tenant id is included so log
// lines can be filtered per club.
func RequestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if scope, ok := tenant.FromRequest(c); ok {
			fields = append(fields, "tenant_id", scope.TenantID)
		}

		if status >= http.StatusInternalServerError {
			logger.Error("HTTP request", fields...)
			return
		}
		logger.Info("HTTP request", fields...)
	}
}
