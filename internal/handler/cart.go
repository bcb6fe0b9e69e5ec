package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /api/cart/:ownerId
func (h *Handler) getCart(c *gin.Context) {
	owner := c.Param("ownerId")
	if !identity(c).CanActFor(owner) {
		abort(c, http.StatusForbidden, "forbidden")
		return
	}

	doc, err := h.carts.Get(c.Request.Context(), owner)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCart(doc))
}

// POST /api/cart replaces the whole cart document. userId defaults to the
// caller.
func (h *Handler) replaceCart(c *gin.Context) {
	var req replaceCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}

	id := identity(c)
	owner := req.UserID
	if owner == "" {
		owner = id.UserID
	}
	if !id.CanActFor(owner) {
		abort(c, http.StatusForbidden, "forbidden")
		return
	}

	doc, err := h.carts.Replace(c.Request.Context(), owner, req.Items)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCart(doc))
}
