package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academia-portal-api/internal/service"
)

// Metrics records per-route request counts and latencies. The route
// template is used when gin resolved one, so path cardinality stays
// bounded.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, status, duration)
	}
}
