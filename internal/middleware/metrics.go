package middleware

import (
	"github.com/gin-gonic/gin"

	"surveydesk-go/internal/monitoring"
)

// Metrics counts requests per route and status class.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		monitoring.DevServerRequestsTotal.
			WithLabelValues(c.Request.Method, path, monitoring.StatusClass(c.Writer.Status())).
			Inc()
	}
}
