package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
)

const (
	deliveryColumns = `id, order_id, user_id, status, type, driver_id, vehicle, address, created_at`

	getDeliveryByOrderSQL = `SELECT ` + deliveryColumns + ` FROM deliveries WHERE order_id = $1`

	lockDeliverySQL = `SELECT status, driver_id FROM deliveries WHERE id = $1 FOR UPDATE`

	updateDeliveryStatusSQL = `UPDATE deliveries
		SET status = $2, driver_id = COALESCE(NULLIF($3, ''), driver_id)
		WHERE id = $1
		RETURNING ` + deliveryColumns

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`
)

var _ delivery.Repository = (*DeliveryRepository)(nil)

// DeliveryRepository implements delivery.Repository backed by PostgreSQL.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository returns a DeliveryRepository that uses the given pool.
func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

// List returns deliveries matching f, newest first.
func (r *DeliveryRepository) List(ctx context.Context, f delivery.Filter) ([]delivery.Record, error) {
	query, args := buildDeliveryListQuery(f)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list deliveries")
	}
	return pgx.CollectRows(rows, scanDelivery)
}

func buildDeliveryListQuery(f delivery.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.DriverID != "" {
		add("driver_id = $%d", f.DriverID)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	var b strings.Builder
	b.WriteString("SELECT " + deliveryColumns + " FROM deliveries")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	return b.String(), args
}

// GetByOrderID returns the delivery attached to orderID.
func (r *DeliveryRepository) GetByOrderID(ctx context.Context, orderID string) (*delivery.Record, error) {
	rows, err := r.pool.Query(ctx, getDeliveryByOrderSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "get delivery for order %q", orderID)
	}
	d, err := pgx.CollectExactlyOneRow(rows, scanDelivery)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get delivery for order %q", orderID)
	}
	return &d, nil
}

// UpdateStatus applies ch and mirrors the status onto the owning order in
// the same transaction. The row stays locked from the assignment check to
// the write.
func (r *DeliveryRepository) UpdateStatus(ctx context.Context, id string, ch delivery.Change) (*delivery.Record, error) {
	var out delivery.Record
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			current delivery.Status
			driver  string
		)
		if err := tx.QueryRow(ctx, lockDeliverySQL, id).Scan(&current, &driver); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return delivery.ErrNotFound
			}
			return errors.Wrapf(err, "lock delivery %q", id)
		}
		if current.Final() {
			return delivery.ErrFinalStatus
		}
		if !ch.Permits(driver) {
			return delivery.ErrNotAssignee
		}

		rows, err := tx.Query(ctx, updateDeliveryStatusSQL, id, string(ch.Status), ch.DriverID)
		if err != nil {
			return errors.Wrapf(err, "update delivery %q", id)
		}
		d, err := pgx.CollectExactlyOneRow(rows, scanDelivery)
		if err != nil {
			return errors.Wrapf(err, "update delivery %q", id)
		}

		if _, err := tx.Exec(ctx, updateOrderStatusSQL, d.OrderID, string(order.StatusForDelivery(ch.Status))); err != nil {
			return errors.Wrapf(err, "update order %q status", d.OrderID)
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func scanDelivery(row pgx.CollectableRow) (delivery.Record, error) {
	var (
		d       delivery.Record
		vehicle []byte
	)
	err := row.Scan(&d.ID, &d.OrderID, &d.UserID, &d.Status, &d.Type, &d.DriverID, &vehicle, &d.Address, &d.CreatedAt)
	if err != nil {
		return d, err
	}
	if len(vehicle) > 0 {
		d.Vehicle = new(delivery.Vehicle)
		if err := json.Unmarshal(vehicle, d.Vehicle); err != nil {
			return d, errors.Wrapf(err, "decode vehicle of delivery %q", d.ID)
		}
	}
	return d, nil
}
