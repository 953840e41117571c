package handlers

import (
	"net/http"

	"procureflow/pkg/respond"

	"github.com/gin-gonic/gin"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Checkout submits the cart as a purchase request: 201 when created, 200 when an earlier
// request with the same Idempotency-Key is replayed.
func (h *Handler) Checkout(c *gin.Context) {
	claims, ok := claimsOf(c)
	if !ok {
		return
	}
	res, err := h.s.Purchases.Checkout(c.Request.Context(), claims.Subject, c.GetHeader(idempotencyKeyHeader))
	if err != nil {
		respond.Error(c, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	} else {
		c.Header("Location", "/purchase-requests/"+res.ID)
	}
	respond.OK(c, status, res)
}

func (h *Handler) ListPurchaseRequests(c *gin.Context) {
	claims, ok := claimsOf(c)
	if !ok {
		return
	}
	prs, err := h.s.Purchases.List(c.Request.Context(), claims.Subject)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"purchase_requests": prs, "count": len(prs)})
}

func (h *Handler) GetPurchaseRequest(c *gin.Context) {
	claims, ok := claimsOf(c)
	if !ok {
		return
	}
	pr, err := h.s.Purchases.Get(c.Request.Context(), claims.Subject, c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, pr)
}
