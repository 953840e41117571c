package middleware

import (
	"errors"
	"log/slog"
	"slices"
	"strings"

	"procureflow/internal/apperr"
	"procureflow/internal/auth"
	"procureflow/pkg/ctxmanage"
	"procureflow/pkg/logkey"
	"procureflow/pkg/respond"

	"github.com/gin-gonic/gin"
)

type Mid struct {
	a *auth.Keys
}

func NewMid(a *auth.Keys) (*Mid, error) {
	if a == nil {
		return nil, errors.New("auth keys cannot be nil")
	}
	return &Mid{a: a}, nil
}

// Authentication validates the bearer token and stores its claims in the request context.
func (m *Mid) Authentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := ctxmanage.GetTraceIdOfRequest(c)

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			slog.Info("missing or malformed authorization header", slog.String(logkey.TraceID, traceId))
			respond.Abort(c, apperr.KindUnauthorized, "expected authorization header format: Bearer <token>")
			return
		}

		claims, err := m.a.ValidateToken(parts[1])
		if err != nil {
			slog.Info("token rejected", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
			respond.Abort(c, apperr.KindUnauthorized, "invalid or expired token")
			return
		}

		c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// Authorize runs next only when the caller's role is one of roles.
func (m *Mid) Authorize(next gin.HandlerFunc, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := ctxmanage.GetTraceIdOfRequest(c)

		claims, ok := auth.ClaimsFrom(c.Request.Context())
		if !ok {
			slog.Error("claims not found", slog.String(logkey.TraceID, traceId))
			respond.Abort(c, apperr.KindUnauthorized, "authentication required")
			return
		}
		if !slices.Contains(roles, claims.Role) {
			slog.Info("role not permitted", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.UserID, claims.Subject), slog.String("Role", claims.Role))
			respond.Abort(c, apperr.KindForbidden, "insufficient permissions")
			return
		}
		next(c)
	}
}
