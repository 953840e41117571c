package handlers

import (
	"net/http"

	"procureflow/internal/agent"
	"procureflow/pkg/respond"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Chat(c *gin.Context) {
	claims, ok := claimsOf(c)
	if !ok {
		return
	}
	var req agent.ChatRequest
	if err := bindJSON(c, &req); err != nil {
		respond.Error(c, err)
		return
	}
	conv, err := h.s.Agent.Chat(c.Request.Context(), claims.Subject, req)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, conv)
}

func (h *Handler) GetConversation(c *gin.Context) {
	claims, ok := claimsOf(c)
	if !ok {
		return
	}
	conv, err := h.s.Agent.Transcript(c.Request.Context(), claims.Subject, c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, conv)
}
