package handlers

import (
	"net/http"

	"procureflow/internal/users"
	"procureflow/pkg/respond"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Register(c *gin.Context) {
	var nu users.NewUser
	if err := bindJSON(c, &nu); err != nil {
		respond.Error(c, err)
		return
	}
	u, err := h.s.Users.Register(c.Request.Context(), nu)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusCreated, u)
}

func (h *Handler) Login(c *gin.Context) {
	var cred users.Credentials
	if err := bindJSON(c, &cred); err != nil {
		respond.Error(c, err)
		return
	}
	session, err := h.s.Users.Login(c.Request.Context(), cred)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, session)
}
