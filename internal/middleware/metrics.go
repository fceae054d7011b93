package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tutorhive/tutorhive-api/internal/service"
)

// Metrics returns middleware that captures request metrics using the provided
// service. Scrapes of the metrics endpoint itself are not recorded.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
