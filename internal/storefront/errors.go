package storefront

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/order"
)

// Kind classifies a controller failure.
type Kind string

// Failure kinds.
const (
	KindUnauthenticated      Kind = "Unauthenticated"
	KindMissingAddress       Kind = "MissingAddress"
	KindInvalidPaymentDetail Kind = "InvalidPaymentDetail"
	KindEmptyCart            Kind = "EmptyCart"
	KindStoreUnavailable     Kind = "StoreUnavailable"
	KindNotFound             Kind = "NotFound"
	// KindRejected is a store refusal that none of the other kinds describe,
	// such as a replayed submission.
	KindRejected Kind = "Rejected"
)

// Error is the structured failure every controller operation returns. Message
// is short and fit for display.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same Kind, so that the sentinels below
// work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrUnauthenticated      = &Error{Kind: KindUnauthenticated}
	ErrMissingAddress       = &Error{Kind: KindMissingAddress}
	ErrInvalidPaymentDetail = &Error{Kind: KindInvalidPaymentDetail}
	ErrEmptyCart            = &Error{Kind: KindEmptyCart}
	ErrStoreUnavailable     = &Error{Kind: KindStoreUnavailable}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrRejected             = &Error{Kind: KindRejected}
)

// ErrCheckoutInFlight is returned by PlaceOrder when the submit lock is on
// and another checkout has not finished yet.
var ErrCheckoutInFlight = errors.New("checkout already in progress")

// statusCoder is implemented by backend errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// checkoutError maps a local validation failure.
func checkoutError(err error) *Error {
	switch {
	case errors.Is(err, order.ErrMissingAddress):
		return &Error{Kind: KindMissingAddress, Message: "Please enter a delivery address.", Err: err}
	case errors.Is(err, order.ErrInvalidPaymentMethod):
		return &Error{Kind: KindInvalidPaymentDetail, Message: "Please choose a payment method.", Err: err}
	case errors.Is(err, order.ErrInvalidGCashNumber):
		return &Error{Kind: KindInvalidPaymentDetail, Message: "GCash number must be 11 digits starting with 09.", Err: err}
	case errors.Is(err, order.ErrEmptyCart):
		return &Error{Kind: KindEmptyCart, Message: "Your cart is empty.", Err: err}
	}
	return &Error{Kind: KindRejected, Message: err.Error(), Err: err}
}

// storeError converts a backend failure at the controller boundary.
func storeError(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindStoreUnavailable, Message: "The store took too long to answer.", Err: err}
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch code := sc.StatusCode(); {
		case code == http.StatusUnauthorized:
			return &Error{Kind: KindUnauthenticated, Message: "Please sign in again.", Err: err}
		case code == http.StatusNotFound:
			return &Error{Kind: KindNotFound, Message: "Not found.", Err: err}
		case code == http.StatusUnprocessableEntity:
			return &Error{Kind: KindNotFound, Message: "An item in your cart is no longer available.", Err: err}
		case code >= 400 && code < 500:
			return &Error{Kind: KindRejected, Message: "The store rejected the request.", Err: err}
		}
	}
	return &Error{Kind: KindStoreUnavailable, Message: "The store is unavailable. Please try again.", Err: err}
}
