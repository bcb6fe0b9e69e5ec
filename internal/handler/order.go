package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
)

// HeaderIdempotencyKey lets a client mark retries of one order submission.
const HeaderIdempotencyKey = "Idempotency-Key"

// POST /api/orders creates an order for the caller and clears their cart.
func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	lg := zctx.From(ctx)
	uid := identity(c).UserID

	if key := c.GetHeader(HeaderIdempotencyKey); key != "" && h.idem != nil {
		k := h.idem.Key("order", uid, key)
		claimed, err := h.idem.Claim(ctx, k)
		switch {
		case err != nil:
			// Redis being down must not block checkout.
			lg.Warn("Idempotency check failed", zap.Error(err))
		case !claimed:
			abort(c, http.StatusConflict, "duplicate order submission")
			return
		default:
			defer func() {
				if c.Writer.Status() != http.StatusCreated {
					if err := h.idem.Release(ctx, k); err != nil {
						lg.Warn("Release idempotency key failed", zap.Error(err))
					}
				}
			}()
		}
	}

	o, err := h.orders.PlaceOrder(ctx, uid, order.Checkout{
		Lines:         req.Items,
		Address:       req.Address,
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		GCashNumber:   req.GCashNumber,
		DeliveryType:  delivery.Type(req.DeliveryType),
	})
	if err != nil {
		if reason, ok := rejection(err); ok {
			h.ordersRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		}
		fail(c, err)
		return
	}

	h.ordersCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", string(o.PaymentMethod)),
		attribute.String("delivery_type", string(o.DeliveryType)),
	))
	lg.Info("Order created",
		zap.String("order_id", o.ID),
		zap.Stringer("total", o.Total),
		zap.Int("lines", len(o.Lines)),
	)
	c.JSON(http.StatusCreated, toOrder(o, nil))
}

func rejection(err error) (string, bool) {
	var pnf *order.ProductNotFoundError
	switch {
	case errors.Is(err, order.ErrMissingAddress):
		return "missing_address", true
	case errors.Is(err, order.ErrInvalidPaymentMethod), errors.Is(err, order.ErrInvalidGCashNumber):
		return "invalid_payment", true
	case errors.Is(err, order.ErrEmptyCart):
		return "empty_cart", true
	case errors.As(err, &pnf):
		return "unknown_product", true
	}
	return "", false
}

// GET /api/orders
func (h *Handler) listMyOrders(c *gin.Context) {
	h.writeOrders(c, identity(c).UserID)
}

// GET /api/orders/:ownerId
func (h *Handler) listOrders(c *gin.Context) {
	owner := c.Param("ownerId")
	if !identity(c).CanActFor(owner) {
		abort(c, http.StatusForbidden, "forbidden")
		return
	}
	h.writeOrders(c, owner)
}

func (h *Handler) writeOrders(c *gin.Context, userID string) {
	views, err := h.orders.ListForUser(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]Order, len(views))
	for i := range views {
		out[i] = toOrder(&views[i].Order, views[i].Products)
	}
	c.JSON(http.StatusOK, out)
}
