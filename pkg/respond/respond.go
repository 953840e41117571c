// Package respond writes the single response envelope used by every endpoint:
//
//	{"ok": true, "data": ...}
//	{"ok": false, "error": {"kind": ..., "message": ..., "details": ...}}
package respond

import (
	"log/slog"
	"net/http"

	"procureflow/internal/apperr"
	"procureflow/pkg/ctxmanage"
	"procureflow/pkg/logkey"

	"github.com/gin-gonic/gin"
)

type Body struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
	Details any         `json:"details,omitempty"`
}

func OK(c *gin.Context, status int, data any) {
	c.JSON(status, Body{OK: true, Data: data})
}

// Error maps err onto its status and aborts the request. Internal errors are logged with
// their cause and reach the client only as a generic message.
func Error(c *gin.Context, err error) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Storage("unclassified", err)
	}
	status := StatusOf(e.Kind)

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Kind, string(e.Kind)), slog.String(logkey.ERROR, err.Error()),
			slog.String("Path", c.FullPath()))
	} else {
		slog.Info("request rejected", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Kind, string(e.Kind)), slog.String("Message", e.Message),
			slog.String("Path", c.FullPath()))
	}

	c.AbortWithStatusJSON(status, Body{Error: &ErrorBody{Kind: e.Kind, Message: e.Message, Details: e.Details}})
}

// Abort writes an error body without going through the taxonomy; used by middleware.
func Abort(c *gin.Context, kind apperr.Kind, message string) {
	c.AbortWithStatusJSON(StatusOf(kind), Body{Error: &ErrorBody{Kind: kind, Message: message}})
}

func StatusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
