package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/promotion"
)

var (
	// ErrCrossRestaurantCart is returned when an item from one restaurant is
	// added to a cart holding items of another. The cart is left unchanged;
	// the customer has to clear it first.
	ErrCrossRestaurantCart = errors.New("cart holds items from another restaurant")
	// ErrItemNotInCart is returned when removing an item that is not in the cart.
	ErrItemNotInCart = errors.New("item not in cart")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrItemUnavailable is returned when the catalog item is not orderable.
	ErrItemUnavailable = errors.New("catalog item is unavailable")
)

// CrossRestaurantError details an ErrCrossRestaurantCart rejection.
type CrossRestaurantError struct {
	CartRestaurantID      string
	RequestedRestaurantID string
}

func (e *CrossRestaurantError) Error() string {
	return fmt.Sprintf("cart holds items from restaurant %s, cannot add from %s",
		e.CartRestaurantID, e.RequestedRestaurantID)
}

// Is reports ErrCrossRestaurantCart as the matching sentinel.
func (e *CrossRestaurantError) Is(target error) bool {
	return target == ErrCrossRestaurantCart
}

// Item is a pending line in a user's cart. Snapshot is frozen at the first
// add; repeated adds accumulate Quantity only.
type Item struct {
	UserID        string             `json:"user_id"`
	CatalogItemID string             `json:"catalog_item_id"`
	RestaurantID  string             `json:"restaurant_id"`
	Name          string             `json:"name"`
	Quantity      int                `json:"quantity"`
	Snapshot      promotion.Snapshot `json:"snapshot"`
	AddedAt       time.Time          `json:"added_at"`
}

// LineTotal returns the charged unit price times quantity.
func (i *Item) LineTotal() decimal.Decimal {
	return i.Snapshot.DiscountedPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Repository persists carts. Implementations must make Add atomic with
// respect to concurrent adds for the same user: quantities of the same
// catalog item are summed, never overwritten, and the restaurant check is
// evaluated against the state being written.
type Repository interface {
	// Add inserts item or increments the quantity of the existing line for the
	// same catalog item, keeping the stored snapshot. It returns the stored line.
	Add(ctx context.Context, item Item) (*Item, error)
	// List returns the user's cart lines ordered by add time.
	List(ctx context.Context, userID string) ([]Item, error)
	// Remove deletes one line, returning ErrItemNotInCart if absent.
	Remove(ctx context.Context, userID, catalogItemID string) error
	// Clear deletes all lines of the user's cart.
	Clear(ctx context.Context, userID string) error
	// ClearOrdered subtracts the quantities of ordered from the user's cart,
	// deleting lines that reach zero. Lines added or topped up after ordered
	// was read keep the difference.
	ClearOrdered(ctx context.Context, userID string, ordered []Item) error
}
