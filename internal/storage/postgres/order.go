package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, user_id, items, total, address, payment_method, gcash_number, delivery_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertDeliverySQL = `INSERT INTO deliveries
		(id, order_id, user_id, status, type, driver_id, vehicle, address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	listOrdersByUserSQL = `SELECT id, user_id, items, total, address, payment_method, gcash_number,
			delivery_type, status, created_at
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and its delivery record in one transaction.
// The order lines are serialized to JSON for the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, d *delivery.Record) error {
	items, err := json.Marshal(o.Lines)
	if err != nil {
		return errors.Wrap(err, "encode order items")
	}
	vehicle, err := encodeVehicle(d.Vehicle)
	if err != nil {
		return err
	}

	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.UserID, items, o.Total, o.Address, string(o.PaymentMethod), o.GCashNumber,
			string(o.DeliveryType), string(o.Status), o.CreatedAt,
		); err != nil {
			return errors.Wrapf(err, "insert order %q", o.ID)
		}
		if _, err := tx.Exec(ctx, insertDeliverySQL,
			d.ID, d.OrderID, d.UserID, string(d.Status), string(d.Type), d.DriverID, vehicle, d.Address, d.CreatedAt,
		); err != nil {
			return errors.Wrapf(err, "insert delivery for order %q", o.ID)
		}
		return nil
	})
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for %q", userID)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o     order.Order
		items []byte
	)
	err := row.Scan(
		&o.ID, &o.UserID, &items, &o.Total, &o.Address, &o.PaymentMethod, &o.GCashNumber,
		&o.DeliveryType, &o.Status, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Lines); err != nil {
		return o, errors.Wrapf(err, "decode items of order %q", o.ID)
	}
	return o, nil
}

func encodeVehicle(v *delivery.Vehicle) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode vehicle")
	}
	return b, nil
}
