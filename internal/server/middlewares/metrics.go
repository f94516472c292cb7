package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/givlyn/backupd/internal/metrics"
)

// Metrics records every request under its route template
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
