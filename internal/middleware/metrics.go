package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campus-core/backoffice-api/internal/service"
)

// Metrics returns middleware that records method, route and status of each
// request in the metrics service. Hits on the monitoring endpoints
// themselves are not observed, mirroring the request logger.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}
		// Prefer the route template so path params don't explode label
		// cardinality.
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
