package cart

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for cart documents.
var (
	ErrOwnerRequired   = errors.New("cart owner required")
	ErrProductRequired = errors.New("product id required")
	ErrNegativePrice   = errors.New("unit price must not be negative")
	ErrPriceScale      = errors.New("unit price must have at most two decimal places")
)

// Line is one product entry in a cart.
type Line struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// MarshalJSON writes the unit price as an exact JSON number. Both numbers
// and quoted strings are accepted when decoding.
func (l Line) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ProductID string      `json:"productId"`
		Name      string      `json:"name"`
		UnitPrice json.Number `json:"price"`
		Quantity  int         `json:"quantity"`
	}{
		ProductID: l.ProductID,
		Name:      l.Name,
		UnitPrice: json.Number(l.UnitPrice.String()),
		Quantity:  l.Quantity,
	})
}

// Subtotal returns UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the stored cart document of a single owner.
type Cart struct {
	OwnerID   string
	Lines     Lines
	UpdatedAt time.Time
}

// Repository persists cart documents keyed by owner. Replace overwrites the
// whole document; there is no per-line merge.
type Repository interface {
	// Get returns the owner's cart, or an empty cart when none is stored.
	Get(ctx context.Context, ownerID string) (*Cart, error)
	Replace(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, ownerID string) error
}
