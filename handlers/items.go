package handlers

import (
	"net/http"
	"strconv"

	"procureflow/internal/apperr"
	"procureflow/internal/auth"
	"procureflow/internal/items"
	"procureflow/pkg/respond"

	"github.com/gin-gonic/gin"
)

// CreateItem adds a catalog item. Duplicates by name and category are rejected with 409
// listing the existing items, unless an admin sends force: true.
func (h *Handler) CreateItem(c *gin.Context) {
	claims, ok := claimsOf(c)
	if !ok {
		return
	}

	var ni items.NewItem
	if err := bindJSON(c, &ni); err != nil {
		respond.Error(c, err)
		return
	}

	it, err := h.s.Items.CreateItem(c.Request.Context(), ni, claims.Subject, claims.Role == auth.RoleAdmin)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.Header("Location", "/items/"+it.ID)
	respond.OK(c, http.StatusCreated, it)
}

func (h *Handler) SearchItems(c *gin.Context) {
	fields := map[string]string{}
	limit := queryInt(c, "limit", fields)
	offset := queryInt(c, "offset", fields)
	if len(fields) > 0 {
		respond.Error(c, apperr.Validation("invalid search parameters", fields))
		return
	}

	res, err := h.s.Items.SearchItems(c.Request.Context(), c.Query("q"), limit, offset)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, res)
}

func (h *Handler) GetItem(c *gin.Context) {
	it, err := h.s.Items.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, it)
}

func (h *Handler) DeleteItem(c *gin.Context) {
	id := c.Param("id")
	if err := h.s.Items.DeleteItem(c.Request.Context(), id); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}

// queryInt parses an optional integer query parameter, recording a message in fields on failure.
func queryInt(c *gin.Context, key string, fields map[string]string) int {
	raw := c.Query(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fields[key] = "must be an integer"
		return 0
	}
	return n
}
