// Package handler exposes the cart, order and delivery HTTP API on a gin
// router.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
)

// Idempotency claims client-supplied request keys. See
// internal/storage/redis.IdempotencyStore.
type Idempotency interface {
	Key(operation, userID, key string) string
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Verifier turns a bearer token into an identity.
type Verifier interface {
	Verify(raw string) (auth.Identity, error)
}

// Options holds optional collaborators of the Handler.
type Options struct {
	// Idempotency enables the Idempotency-Key header on order creation.
	Idempotency Idempotency
	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Handler serves the storefront API.
type Handler struct {
	carts      *cart.Service
	orders     *order.Service
	deliveries *delivery.Service
	verifier   Verifier
	idem       Idempotency
	opts       Options

	ordersCreated   metric.Int64Counter
	ordersRejected  metric.Int64Counter
	deliveriesMoved metric.Int64Counter
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	carts *cart.Service,
	orders *order.Service,
	deliveries *delivery.Service,
	verifier Verifier,
	opts Options,
) (*Handler, error) {
	h := &Handler{
		carts:      carts,
		orders:     orders,
		deliveries: deliveries,
		verifier:   verifier,
		idem:       opts.Idempotency,
		opts:       opts,
	}

	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("github.com/xenking/storefront/internal/handler")

	var err error
	if h.ordersCreated, err = meter.Int64Counter("storefront.orders.created",
		metric.WithDescription("Orders created"),
	); err != nil {
		return nil, errors.Wrap(err, "orders created counter")
	}
	if h.ordersRejected, err = meter.Int64Counter("storefront.orders.rejected",
		metric.WithDescription("Order submissions rejected by validation"),
	); err != nil {
		return nil, errors.Wrap(err, "orders rejected counter")
	}
	if h.deliveriesMoved, err = meter.Int64Counter("storefront.deliveries.status_changes",
		metric.WithDescription("Delivery status transitions"),
	); err != nil {
		return nil, errors.Wrap(err, "delivery transitions counter")
	}
	return h, nil
}

// Router builds the gin engine with all API routes mounted under /api.
// Extra routes such as health probes can be added by the caller.
func (h *Handler) Router(service string) *gin.Engine {
	r := gin.New()
	r.ContextWithFallback = true
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) { abort(c, http.StatusNotFound, "not found") })
	r.NoMethod(func(c *gin.Context) { abort(c, http.StatusMethodNotAllowed, "method not allowed") })

	var tracing []otelgin.Option
	if h.opts.TracerProvider != nil {
		tracing = append(tracing, otelgin.WithTracerProvider(h.opts.TracerProvider))
	}
	r.Use(otelgin.Middleware(service, tracing...))

	api := r.Group("/api", h.authenticate)
	{
		api.GET("/cart/:ownerId", h.getCart)
		api.POST("/cart", h.replaceCart)

		api.POST("/orders", h.createOrder)
		api.GET("/orders", h.listMyOrders)
		api.GET("/orders/:ownerId", h.listOrders)

		api.GET("/delivery", h.listDeliveries)
		api.GET("/delivery/mine", h.listMyDeliveries)
		api.GET("/delivery/by-order/:orderId", h.deliveryForOrder)
		api.PATCH("/delivery/:id/status", requireRole(auth.RoleAdmin, auth.RoleDriver), h.advanceDelivery)
	}
	return r
}
