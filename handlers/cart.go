package handlers

import (
	"net/http"

	"procureflow/internal/cart"
	"procureflow/pkg/respond"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetCart(c *gin.Context) {
	claims, ok := claimsOf(c)
	if !ok {
		return
	}
	ct, err := h.s.Cart.GetCart(c.Request.Context(), claims.Subject)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, ct)
}

// AddToCart increments the line for the item; adding the same item twice accumulates.
func (h *Handler) AddToCart(c *gin.Context) {
	claims, ok := claimsOf(c)
	if !ok {
		return
	}
	var req cart.AddItemRequest
	if err := bindJSON(c, &req); err != nil {
		respond.Error(c, err)
		return
	}
	ct, err := h.s.Cart.AddItem(c.Request.Context(), claims.Subject, req)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, ct)
}

func (h *Handler) SetCartQuantity(c *gin.Context) {
	claims, ok := claimsOf(c)
	if !ok {
		return
	}
	var req cart.SetQuantityRequest
	if err := bindJSON(c, &req); err != nil {
		respond.Error(c, err)
		return
	}
	ct, err := h.s.Cart.SetQuantity(c.Request.Context(), claims.Subject, c.Param("itemId"), req)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, ct)
}

func (h *Handler) RemoveFromCart(c *gin.Context) {
	claims, ok := claimsOf(c)
	if !ok {
		return
	}
	ct, err := h.s.Cart.RemoveItem(c.Request.Context(), claims.Subject, c.Param("itemId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, ct)
}
