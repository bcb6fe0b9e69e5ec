// Package memory implements the domain repositories in process memory. It
// backs the API server when no database is configured and serves as the
// store in handler and client tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

var (
	_ cart.Repository     = (*Store)(nil)
	_ order.Repository    = (*Store)(nil)
	_ delivery.Repository = (*Store)(nil)
	_ product.Repository  = (*Catalog)(nil)
)

// Store keeps carts, orders and deliveries. Listings with equal timestamps
// return the most recently inserted first. The zero value is not usable;
// call New.
type Store struct {
	mu         sync.RWMutex
	carts      map[string]cart.Cart
	orders     []order.Order
	deliveries []delivery.Record
}

// New creates an empty Store.
func New() *Store {
	return &Store{carts: make(map[string]cart.Cart)}
}

// Get returns the owner's cart or an empty one.
func (s *Store) Get(_ context.Context, ownerID string) (*cart.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.carts[ownerID]
	if !ok {
		return &cart.Cart{OwnerID: ownerID, Lines: cart.Lines{}}, nil
	}
	c.Lines = c.Lines.Clone()
	return &c, nil
}

// Replace overwrites the owner's cart.
func (s *Store) Replace(_ context.Context, c *cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *c
	stored.Lines = c.Lines.Clone()
	s.carts[c.OwnerID] = stored
	return nil
}

// Delete removes the owner's cart.
func (s *Store) Delete(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, ownerID)
	return nil
}

// Create stores the order and its delivery record together.
func (s *Store) Create(_ context.Context, o *order.Order, d *delivery.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *o
	stored.Lines = o.Lines.Clone()
	s.orders = append(s.orders, stored)
	s.deliveries = append(s.deliveries, *d)
	return nil
}

// ListByUser returns the user's orders, newest first.
func (s *Store) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []order.Order
	for _, o := range slices.Backward(s.orders) {
		if o.UserID == userID {
			o.Lines = o.Lines.Clone()
			out = append(out, o)
		}
	}
	slices.SortStableFunc(out, func(a, b order.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// List returns deliveries matching f, newest first.
func (s *Store) List(_ context.Context, f delivery.Filter) ([]delivery.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []delivery.Record
	for _, d := range slices.Backward(s.deliveries) {
		if matches(d, f) {
			out = append(out, d)
		}
	}
	slices.SortStableFunc(out, func(a, b delivery.Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func matches(d delivery.Record, f delivery.Filter) bool {
	switch {
	case f.Status != "" && d.Status != f.Status,
		f.Type != "" && d.Type != f.Type,
		f.DriverID != "" && d.DriverID != f.DriverID,
		f.UserID != "" && d.UserID != f.UserID,
		f.From != nil && d.CreatedAt.Before(*f.From),
		f.To != nil && d.CreatedAt.After(*f.To):
		return false
	}
	return true
}

// GetByOrderID returns the delivery of orderID.
func (s *Store) GetByOrderID(_ context.Context, orderID string) (*delivery.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.deliveries {
		if d.OrderID == orderID {
			return &d, nil
		}
	}
	return nil, delivery.ErrNotFound
}

// UpdateStatus moves a delivery and mirrors the status onto its order.
func (s *Store) UpdateStatus(_ context.Context, id string, ch delivery.Change) (*delivery.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.deliveries, func(d delivery.Record) bool { return d.ID == id })
	if i < 0 {
		return nil, delivery.ErrNotFound
	}
	d := &s.deliveries[i]
	if d.Status.Final() {
		return nil, delivery.ErrFinalStatus
	}
	if !ch.Permits(d.DriverID) {
		return nil, delivery.ErrNotAssignee
	}
	d.Status = ch.Status
	if ch.DriverID != "" {
		d.DriverID = ch.DriverID
	}
	for j := range s.orders {
		if s.orders[j].ID == d.OrderID {
			s.orders[j].Status = order.StatusForDelivery(ch.Status)
		}
	}
	out := *d
	return &out, nil
}

// Catalog is a fixed product catalog.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]product.Product
}

// NewCatalog creates a Catalog holding products.
func NewCatalog(products ...product.Product) *Catalog {
	c := &Catalog{products: make(map[string]product.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// GetByID returns a product.
func (c *Catalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetByIDs returns the known products among ids.
func (c *Catalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []product.Product
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Upsert adds or replaces products.
func (c *Catalog) Upsert(_ context.Context, products []product.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range products {
		c.products[p.ID] = p
	}
	return nil
}
