package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: status, Message: msg})
}

// fail maps domain errors onto HTTP statuses. Unknown errors are logged and
// answered with 500 without leaking details.
func fail(c *gin.Context, err error) {
	var pnf *order.ProductNotFoundError
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		abort(c, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, cart.ErrOwnerRequired),
		errors.Is(err, cart.ErrProductRequired),
		errors.Is(err, cart.ErrNegativePrice),
		errors.Is(err, cart.ErrPriceScale),
		errors.Is(err, order.ErrOwnerRequired),
		errors.Is(err, order.ErrMissingAddress),
		errors.Is(err, order.ErrInvalidPaymentMethod),
		errors.Is(err, order.ErrInvalidGCashNumber),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, delivery.ErrInvalidStatus),
		errors.Is(err, delivery.ErrInvalidType):
		abort(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &pnf):
		abort(c, http.StatusUnprocessableEntity, pnf.Error())
	case errors.Is(err, delivery.ErrNotFound):
		abort(c, http.StatusNotFound, err.Error())
	case errors.Is(err, delivery.ErrFinalStatus):
		abort(c, http.StatusConflict, err.Error())
	case errors.Is(err, delivery.ErrNotAssignee):
		abort(c, http.StatusForbidden, err.Error())
	default:
		zctx.From(c.Request.Context()).Error("Request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
		abort(c, http.StatusInternalServerError, "internal error")
	}
}
