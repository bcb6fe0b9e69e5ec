package order

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/delivery"
)

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

// Supported payment methods.
const (
	PaymentCOD   PaymentMethod = "COD"
	PaymentGCash PaymentMethod = "GCash"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCOD || m == PaymentGCash
}

// Status is the lifecycle state of an order. Only fulfillment moves it.
type Status string

// Order statuses.
const (
	StatusPending   Status = "Pending"
	StatusAssigned  Status = "Assigned"
	StatusInTransit Status = "InTransit"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// StatusForDelivery maps a delivery status onto the order status it tracks.
func StatusForDelivery(s delivery.Status) Status {
	switch s {
	case delivery.StatusAssigned:
		return StatusAssigned
	case delivery.StatusInTransit:
		return StatusInTransit
	case delivery.StatusCompleted:
		return StatusCompleted
	case delivery.StatusCancelled:
		return StatusCancelled
	default:
		return StatusPending
	}
}

// Order is an immutable purchase snapshot. Lines are an independent copy of
// the cart at checkout and Total is computed once, at creation.
type Order struct {
	ID            string
	UserID        string
	Lines         cart.Lines
	Total         decimal.Decimal
	Address       string
	PaymentMethod PaymentMethod
	GCashNumber   string
	DeliveryType  delivery.Type
	Status        Status
	CreatedAt     time.Time
}

// Checkout is the order-creation payload.
type Checkout struct {
	Lines         cart.Lines
	Address       string
	PaymentMethod PaymentMethod
	GCashNumber   string
	DeliveryType  delivery.Type
}

// Validation errors, checked in this order by ValidateCheckout.
var (
	ErrMissingAddress       = errors.New("delivery address is required")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
	ErrInvalidGCashNumber   = errors.New("invalid GCash number")
	ErrEmptyCart            = errors.New("cart is empty")
)

var gcashPattern = regexp.MustCompile(`^09\d{9}$`)

// ValidGCashNumber reports whether n is "09" followed by nine digits,
// ignoring surrounding whitespace.
func ValidGCashNumber(n string) bool {
	return gcashPattern.MatchString(strings.TrimSpace(n))
}

// ValidateCheckout applies the checkout gate: address (not needed for
// pickup), payment detail, then a non-empty cart with a positive total. The
// first failing rule is returned.
func ValidateCheckout(c Checkout) error {
	if c.DeliveryType != delivery.TypePickup && strings.TrimSpace(c.Address) == "" {
		return ErrMissingAddress
	}
	if !c.PaymentMethod.Valid() {
		return ErrInvalidPaymentMethod
	}
	if c.PaymentMethod == PaymentGCash && !ValidGCashNumber(c.GCashNumber) {
		return ErrInvalidGCashNumber
	}
	if len(c.Lines) == 0 || !c.Lines.Total().IsPositive() {
		return ErrEmptyCart
	}
	return nil
}

// Repository persists orders. Orders are never deleted.
type Repository interface {
	// Create stores the order and its delivery record atomically.
	Create(ctx context.Context, o *Order, d *delivery.Record) error
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}

// Publisher announces created orders to fulfillment.
type Publisher interface {
	OrderCreated(ctx context.Context, o *Order) error
}
