package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"procureflow/internal/auth"
	"procureflow/pkg/ctxmanage"
	"procureflow/pkg/respond"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *auth.Keys) {
	t.Helper()
	keys, err := auth.NewKeys("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	m, err := NewMid(keys)
	require.NoError(t, err)

	r := gin.New()
	r.Use(Logger())
	r.GET("/open", func(c *gin.Context) {
		c.String(http.StatusOK, ctxmanage.GetTraceIdOfRequest(c))
	})
	g := r.Group("/")
	g.Use(m.Authentication())
	g.GET("/me", m.Authorize(func(c *gin.Context) {
		claims, _ := auth.ClaimsFrom(c.Request.Context())
		c.String(http.StatusOK, claims.Subject)
	}, auth.RoleUser, auth.RoleAdmin))
	g.GET("/admin", m.Authorize(func(c *gin.Context) {
		c.Status(http.StatusOK)
	}, auth.RoleAdmin))
	return r, keys
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) respond.Body {
	t.Helper()
	var b respond.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b
}

func TestLoggerPropagatesTraceID(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set(ctxmanage.TraceIDHeader, "trace-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "trace-123", w.Body.String())
	assert.Equal(t, "trace-123", w.Header().Get(ctxmanage.TraceIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.NotEmpty(t, w.Header().Get(ctxmanage.TraceIDHeader))
}

func TestAuthenticationMissingHeader(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	b := decodeBody(t, w)
	assert.False(t, b.OK)
	assert.Equal(t, "unauthorized", string(b.Error.Kind))
}

func TestAuthenticationValidToken(t *testing.T) {
	r, keys := newTestRouter(t)
	token, _, err := keys.GenerateToken("user-42", auth.RoleUser)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42", w.Body.String())
}

func TestAuthorizeRejectsWrongRole(t *testing.T) {
	r, keys := newTestRouter(t)
	token, _, _ := keys.GenerateToken("user-42", auth.RoleUser)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", string(decodeBody(t, w).Error.Kind))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	rl.Sweep(0)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterZeroBurstAdmitsFirstRequest(t *testing.T) {
	r := gin.New()
	r.Use(NewRateLimiter(10, 0).Middleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
