package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campus-core/backoffice-api/internal/service"
)

// Audit records an audit entry after a successful request. Workflow-level
// events are recorded inside the services; this middleware covers generic
// mutating endpoints that have no richer event of their own.
func Audit(sink service.AuditSink, action, entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var entityID *string
		if id := c.Param("id"); id != "" {
			entityID = &id
		}
		sink.Record(c.Request.Context(), Actor(c), action, entityType, entityID, map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
			"ip":      c.ClientIP(),
		})
	}
}
