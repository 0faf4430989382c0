package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/pricing"
)

const (
	orderColumns = `id, user_id, customer_name, customer_phone, restaurant_id, restaurant_name,
		items, subtotal, delivery_fee, tip, total, delivery_address, payment_method,
		delivery_tier, notes, status, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND restaurant_id = $2`

	updateOrderStatusSQL = `UPDATE orders SET status = $4, updated_at = $5
		WHERE id = $1 AND restaurant_id = $2 AND status = $3`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1 AND restaurant_id = $2)`

	listUserOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id`

	listRestaurantOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE restaurant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id`
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

// Create persists a new order in a single statement. Line items are
// serialized to JSON for storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, o.CustomerName, o.CustomerPhone, o.RestaurantID, o.RestaurantName,
		itemsJSON, o.Subtotal, o.DeliveryFee, o.Tip, o.Total, o.DeliveryAddress, o.PaymentMethod,
		string(o.DeliveryTier), o.Notes, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, orderID, restaurantID string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, orderID, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}
	return &o, nil
}

// UpdateStatus writes only status and updated_at, guarded by the expected
// previous status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID, restaurantID string, from, to order.Status, at time.Time) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, orderID, restaurantID, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, orderID, restaurantID).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", orderID, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusConflict
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listUserOrdersSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %q: %w", userID, err)
	}
	return orders, nil
}

func (r *OrderRepository) ListByRestaurant(ctx context.Context, restaurantID string, status order.Status) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listRestaurantOrdersSQL, restaurantID, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing orders of restaurant %q: %w", restaurantID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of restaurant %q: %w", restaurantID, err)
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
		tier      string
		status    string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.CustomerName, &o.CustomerPhone, &o.RestaurantID, &o.RestaurantName,
		&itemsJSON, &o.Subtotal, &o.DeliveryFee, &o.Tip, &o.Total, &o.DeliveryAddress, &o.PaymentMethod,
		&tier, &o.Notes, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.DeliveryTier = pricing.Tier(tier)
	o.Status = order.Status(status)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	return o, nil
}
