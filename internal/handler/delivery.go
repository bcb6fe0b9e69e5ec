package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/delivery"
)

// GET /api/delivery?status=&type=&driverId=&mine=1&from=YYYY-MM-DD&to=YYYY-MM-DD
//
// Customers only ever see their own deliveries; staff see all unless mine=1.
func (h *Handler) listDeliveries(c *gin.Context) {
	id := identity(c)
	from, err := delivery.ParseDay(c.Query("from"), false)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid from date")
		return
	}
	to, err := delivery.ParseDay(c.Query("to"), true)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid to date")
		return
	}

	f := delivery.Filter{
		Status:   delivery.Status(c.Query("status")),
		Type:     delivery.Type(c.Query("type")),
		DriverID: c.Query("driverId"),
		From:     from,
		To:       to,
	}
	if c.Query("mine") == "1" || !id.HasRole(auth.RoleAdmin, auth.RoleDriver) {
		f.UserID = id.UserID
	}

	records, err := h.deliveries.List(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toDeliveries(records))
}

// GET /api/delivery/mine
func (h *Handler) listMyDeliveries(c *gin.Context) {
	records, err := h.deliveries.List(c.Request.Context(), delivery.Filter{UserID: identity(c).UserID})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": toDeliveries(records)})
}

// GET /api/delivery/by-order/:orderId
func (h *Handler) deliveryForOrder(c *gin.Context) {
	d, err := h.deliveries.ForOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		fail(c, err)
		return
	}
	id := identity(c)
	if d.UserID != id.UserID && !id.HasRole(auth.RoleAdmin, auth.RoleDriver) {
		// Indistinguishable from a missing order.
		fail(c, delivery.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivery": toDelivery(d)})
}

// PATCH /api/delivery/:id/status. Drivers act only on unassigned deliveries
// and their own, and take the delivery when they move it.
func (h *Handler) advanceDelivery(c *gin.Context) {
	var req advanceDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ch := delivery.Change{Status: delivery.Status(req.Status), DriverID: req.DriverID}
	if id := identity(c); !id.HasRole(auth.RoleAdmin) {
		ch.ActingDriver = id.UserID
	}

	ctx := c.Request.Context()
	d, err := h.deliveries.Advance(ctx, c.Param("id"), ch)
	if err != nil {
		fail(c, err)
		return
	}
	h.deliveriesMoved.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(d.Status))))
	c.JSON(http.StatusOK, toDelivery(d))
}
