package ctxmanage

import (
	"context"

	"github.com/gin-gonic/gin"
)

// TraceIDHeader is read from incoming requests and echoed on every response.
const TraceIDHeader = "X-Trace-Id"

type traceKey struct{}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceIDFrom returns the trace id stored by WithTraceID, or "Unknown".
func TraceIDFrom(ctx context.Context) string {
	traceId, ok := ctx.Value(traceKey{}).(string)
	if !ok || traceId == "" {
		return "Unknown"
	}
	return traceId
}

// GetTraceIdOfRequest returns the trace id the Logger middleware attached to the request.
func GetTraceIdOfRequest(c *gin.Context) string {
	return TraceIDFrom(c.Request.Context())
}
