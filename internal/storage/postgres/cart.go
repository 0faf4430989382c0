package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bistro/internal/domain/cart"
)

const (
	// Serializes all writers of one user's cart for the rest of the transaction.
	lockCartSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`

	cartRestaurantSQL = `SELECT restaurant_id FROM cart_items WHERE user_id = $1 LIMIT 1`

	addCartItemSQL = `INSERT INTO cart_items
		(user_id, catalog_item_id, restaurant_id, name, quantity, snapshot, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, catalog_item_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING user_id, catalog_item_id, restaurant_id, name, quantity, snapshot, added_at`

	listCartSQL = `SELECT user_id, catalog_item_id, restaurant_id, name, quantity, snapshot, added_at
		FROM cart_items WHERE user_id = $1 ORDER BY added_at, catalog_item_id`

	removeCartItemSQL = `DELETE FROM cart_items WHERE user_id = $1 AND catalog_item_id = $2`
	clearCartSQL      = `DELETE FROM cart_items WHERE user_id = $1`

	// $2 and $3 are parallel arrays of catalog item ids and ordered quantities.
	deleteOrderedSQL = `DELETE FROM cart_items c
		USING unnest($2::text[], $3::int[]) AS o(catalog_item_id, quantity)
		WHERE c.user_id = $1 AND c.catalog_item_id = o.catalog_item_id AND c.quantity <= o.quantity`
	decrementOrderedSQL = `UPDATE cart_items c SET quantity = c.quantity - o.quantity
		FROM unnest($2::text[], $3::int[]) AS o(catalog_item_id, quantity)
		WHERE c.user_id = $1 AND c.catalog_item_id = o.catalog_item_id`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Snapshots
// are stored as JSONB and never updated after the first insert of a line.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Add inserts the line or increments the existing quantity. The restaurant
// check and the write happen under a per-user advisory lock, so concurrent
// adds can neither mix restaurants nor lose quantity.
func (r *CartRepository) Add(ctx context.Context, item cart.Item) (*cart.Item, error) {
	snapshot, err := json.Marshal(item.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshaling price snapshot: %w", err)
	}

	var stored cart.Item
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockCartSQL, item.UserID); err != nil {
			return fmt.Errorf("locking cart: %w", err)
		}

		var current string
		err := tx.QueryRow(ctx, cartRestaurantSQL, item.UserID).Scan(&current)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return fmt.Errorf("reading cart restaurant: %w", err)
		case current != item.RestaurantID:
			return &cart.CrossRestaurantError{
				CartRestaurantID:      current,
				RequestedRestaurantID: item.RestaurantID,
			}
		}

		rows, err := tx.Query(ctx, addCartItemSQL,
			item.UserID, item.CatalogItemID, item.RestaurantID, item.Name,
			item.Quantity, snapshot, item.AddedAt,
		)
		if err != nil {
			return fmt.Errorf("upserting cart item: %w", err)
		}
		stored, err = pgx.CollectExactlyOneRow(rows, scanCartItem)
		if err != nil {
			return fmt.Errorf("upserting cart item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// List returns the user's cart lines ordered by add time.
func (r *CartRepository) List(ctx context.Context, userID string) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx, listCartSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart of %q: %w", userID, err)
	}
	items, err := pgx.CollectRows(rows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("listing cart of %q: %w", userID, err)
	}
	return items, nil
}

// Remove deletes one line, returning cart.ErrItemNotInCart if it is absent.
func (r *CartRepository) Remove(ctx context.Context, userID, catalogItemID string) error {
	tag, err := r.pool.Exec(ctx, removeCartItemSQL, userID, catalogItemID)
	if err != nil {
		return fmt.Errorf("removing cart item %q: %w", catalogItemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotInCart
	}
	return nil
}

// Clear deletes all of the user's cart lines.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}

// ClearOrdered subtracts the ordered quantities under the cart lock. Fully
// ordered lines are deleted first, so the decrement only touches lines that
// grew after checkout read them.
func (r *CartRepository) ClearOrdered(ctx context.Context, userID string, ordered []cart.Item) error {
	if len(ordered) == 0 {
		return nil
	}
	ids := make([]string, len(ordered))
	qty := make([]int32, len(ordered))
	for i, it := range ordered {
		ids[i] = it.CatalogItemID
		qty[i] = int32(it.Quantity)
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockCartSQL, userID); err != nil {
			return fmt.Errorf("locking cart: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteOrderedSQL, userID, ids, qty); err != nil {
			return fmt.Errorf("deleting ordered lines: %w", err)
		}
		if _, err := tx.Exec(ctx, decrementOrderedSQL, userID, ids, qty); err != nil {
			return fmt.Errorf("decrementing ordered lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clearing ordered items of %q: %w", userID, err)
	}
	return nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var (
		item     cart.Item
		snapshot []byte
	)
	err := row.Scan(
		&item.UserID, &item.CatalogItemID, &item.RestaurantID, &item.Name,
		&item.Quantity, &snapshot, &item.AddedAt,
	)
	if err != nil {
		return item, err
	}
	if err := json.Unmarshal(snapshot, &item.Snapshot); err != nil {
		return item, fmt.Errorf("unmarshaling price snapshot: %w", err)
	}
	return item, nil
}
