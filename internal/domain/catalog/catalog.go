package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested catalog item does not exist for
// the given restaurant.
var ErrNotFound = errors.New("catalog item not found")

// Item is a menu entry owned by a restaurant.
type Item struct {
	ID           string
	RestaurantID string
	Name         string
	Price        decimal.Decimal
	Available    bool
}

// Repository defines read operations for the catalog.
type Repository interface {
	GetItem(ctx context.Context, id, restaurantID string) (*Item, error)
}
