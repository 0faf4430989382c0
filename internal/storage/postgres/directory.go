package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bistro/internal/domain/order"
)

const (
	getCustomerSQL       = `SELECT id, name, phone FROM users WHERE id = $1`
	getRestaurantNameSQL = `SELECT name FROM restaurants WHERE id = $1`
)

var _ order.Directory = (*Directory)(nil)

// Directory resolves user profiles and restaurant names.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory returns a Directory that uses the given pool.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) Customer(ctx context.Context, userID string) (*order.Customer, error) {
	var c order.Customer
	err := d.pool.QueryRow(ctx, getCustomerSQL, userID).Scan(&c.ID, &c.Name, &c.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", userID, err)
	}
	return &c, nil
}

func (d *Directory) RestaurantName(ctx context.Context, restaurantID string) (string, error) {
	var name string
	err := d.pool.QueryRow(ctx, getRestaurantNameSQL, restaurantID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", order.ErrRestaurantNotFound
		}
		return "", fmt.Errorf("getting restaurant %q: %w", restaurantID, err)
	}
	return name, nil
}
