package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	getCartSQL = `SELECT items, updated_at FROM carts WHERE owner_id = $1`

	replaceCartSQL = `INSERT INTO carts (owner_id, items, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id) DO UPDATE
		SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at`

	deleteCartSQL = `DELETE FROM carts WHERE owner_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository with one JSONB document per
// owner.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the owner's cart, or an empty cart if none is stored.
func (r *CartRepository) Get(ctx context.Context, ownerID string) (*cart.Cart, error) {
	c := &cart.Cart{OwnerID: ownerID, Lines: cart.Lines{}}

	var items []byte
	err := r.pool.QueryRow(ctx, getCartSQL, ownerID).Scan(&items, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, nil
		}
		return nil, errors.Wrapf(err, "get cart %q", ownerID)
	}
	if err := json.Unmarshal(items, &c.Lines); err != nil {
		return nil, errors.Wrapf(err, "decode cart %q", ownerID)
	}
	return c, nil
}

// Replace overwrites the owner's cart document.
func (r *CartRepository) Replace(ctx context.Context, c *cart.Cart) error {
	lines := c.Lines
	if lines == nil {
		lines = cart.Lines{}
	}
	items, err := json.Marshal(lines)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}
	if _, err := r.pool.Exec(ctx, replaceCartSQL, c.OwnerID, items, c.UpdatedAt); err != nil {
		return errors.Wrapf(err, "replace cart %q", c.OwnerID)
	}
	return nil
}

// Delete removes the owner's cart. Deleting a missing cart is not an error.
func (r *CartRepository) Delete(ctx context.Context, ownerID string) error {
	if _, err := r.pool.Exec(ctx, deleteCartSQL, ownerID); err != nil {
		return errors.Wrapf(err, "delete cart %q", ownerID)
	}
	return nil
}
