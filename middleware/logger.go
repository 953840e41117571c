package middleware

import (
	"log/slog"
	"time"

	"procureflow/pkg/ctxmanage"
	"procureflow/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Logger assigns a trace id to the request (reusing X-Trace-Id when the caller sends one)
// and logs the outcome once the handler chain finishes.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := c.GetHeader(ctxmanage.TraceIDHeader)
		if traceId == "" || len(traceId) > 128 {
			traceId = uuid.NewString()
		}
		c.Request = c.Request.WithContext(ctxmanage.WithTraceID(c.Request.Context(), traceId))
		c.Header(ctxmanage.TraceIDHeader, traceId)

		start := time.Now()
		c.Next()

		slog.Info("request completed",
			slog.String(logkey.TraceID, traceId),
			slog.String("Method", c.Request.Method),
			slog.String("Path", c.Request.URL.Path),
			slog.Int("Status", c.Writer.Status()),
			slog.Duration("Latency", time.Since(start)),
			slog.String("ClientIP", c.ClientIP()),
		)
	}
}
