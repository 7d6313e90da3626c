package middleware

import (
	"time"

	"cashier/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware 记录请求数、耗时和响应大小，按路由模板聚合
func MetricsMiddleware(collector *metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		collector.RecordHTTPRequest(
			c.Request.Method,
			endpoint,
			metrics.StatusCategory(c.Writer.Status()),
			time.Since(start),
			max(c.Writer.Size(), 0),
		)
	}
}
