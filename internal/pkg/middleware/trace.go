package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TraceIDKey gin.Context 中追踪ID的键
const TraceIDKey = "traceID"

type traceCtxKey struct{}

// TraceMiddleware 透传或生成追踪ID，写入 gin.Context、请求 context 和响应头
// 优先读取 X-Trace-ID，其次 X-Request-ID
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = c.GetHeader("X-Request-ID")
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), traceCtxKey{}, traceID))
		c.Header("X-Trace-ID", traceID)

		c.Next()
	}
}

// TraceID 从请求 context 中读取追踪ID，未经过 TraceMiddleware 时为空
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceCtxKey{}).(string)
	return id
}
