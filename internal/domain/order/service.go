package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/product"
)

// ErrOwnerRequired is returned when an order is placed without a user.
var ErrOwnerRequired = errors.New("order owner required")

// ProductNotFoundError indicates an order line references an unknown product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// View is an order with the catalog entries of its lines joined in.
type View struct {
	Order    Order
	Products []product.Product
}

// Service encapsulates server-side order placement and listing.
type Service struct {
	orders   Repository
	carts    cart.Repository
	products product.Repository
	events   Publisher
	now      func() time.Time
}

// NewService creates an order Service. events may be nil.
func NewService(
	orders Repository,
	carts cart.Repository,
	products product.Repository,
	events Publisher,
) *Service {
	return &Service{
		orders:   orders,
		carts:    carts,
		products: products,
		events:   events,
		now:      time.Now,
	}
}

// PlaceOrder validates the checkout, snapshots the lines, persists the order
// together with its pending delivery record, then deletes the user's stored
// cart. The cart deletion is a separate write; if it fails the order stands
// and the client reconciles on its next refresh.
func (s *Service) PlaceOrder(ctx context.Context, userID string, c Checkout) (*Order, error) {
	if userID == "" {
		return nil, ErrOwnerRequired
	}
	if c.DeliveryType == "" {
		c.DeliveryType = delivery.TypeInHouse
	}
	if !c.DeliveryType.Valid() {
		return nil, delivery.ErrInvalidType
	}
	if err := c.Lines.Validate(); err != nil {
		return nil, err
	}
	c.Lines = c.Lines.Normalize()
	if err := ValidateCheckout(c); err != nil {
		return nil, err
	}

	lines, err := s.resolveLines(ctx, c.Lines)
	if err != nil {
		return nil, err
	}
	total := lines.Total()
	if !total.IsPositive() {
		return nil, ErrEmptyCart
	}

	gcash := ""
	if c.PaymentMethod == PaymentGCash {
		gcash = strings.TrimSpace(c.GCashNumber)
	}

	now := s.now().UTC()
	o := &Order{
		ID:            uuid.New().String(),
		UserID:        userID,
		Lines:         lines,
		Total:         total,
		Address:       strings.TrimSpace(c.Address),
		PaymentMethod: c.PaymentMethod,
		GCashNumber:   gcash,
		DeliveryType:  c.DeliveryType,
		Status:        StatusPending,
		CreatedAt:     now,
	}
	d := &delivery.Record{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		UserID:    userID,
		Status:    delivery.StatusPending,
		Type:      c.DeliveryType,
		Address:   o.Address,
		CreatedAt: now,
	}
	if err := s.orders.Create(ctx, o, d); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	lg := zctx.From(ctx)
	if err := s.carts.Delete(ctx, userID); err != nil {
		lg.Warn("Clear cart after order failed",
			zap.String("order_id", o.ID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
	if s.events != nil {
		if err := s.events.OrderCreated(ctx, o); err != nil {
			lg.Warn("Publish order created failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}

	return o, nil
}

// resolveLines checks every line against the catalog and fills in missing
// names. Prices stay as submitted: the order records what the customer saw.
func (s *Service) resolveLines(ctx context.Context, lines cart.Lines) (cart.Lines, error) {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	out := lines.Clone()
	for i := range out {
		p, ok := byID[out[i].ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: out[i].ProductID}
		}
		if out[i].Name == "" {
			out[i].Name = p.Name
		}
	}
	return out, nil
}

// ListForUser returns the user's orders newest first, each with the catalog
// entries of its lines.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]View, error) {
	if userID == "" {
		return nil, ErrOwnerRequired
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, o := range orders {
		for _, l := range o.Lines {
			if _, ok := seen[l.ProductID]; !ok {
				seen[l.ProductID] = struct{}{}
				ids = append(ids, l.ProductID)
			}
		}
	}

	byID := make(map[string]product.Product, len(ids))
	if len(ids) > 0 {
		fetched, err := s.products.GetByIDs(ctx, ids)
		if err != nil {
			return nil, errors.Wrap(err, "get order products")
		}
		for _, p := range fetched {
			byID[p.ID] = p
		}
	}

	views := make([]View, len(orders))
	for i, o := range orders {
		views[i].Order = o
		for _, l := range o.Lines {
			// Products removed from the catalog since purchase are skipped;
			// the line snapshot still carries name and price.
			if p, ok := byID[l.ProductID]; ok {
				views[i].Products = append(views[i].Products, p)
			}
		}
	}
	return views, nil
}
