package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/internal/domain/promotion"
)

var (
	// ErrNotFound is returned when an order does not exist in the given
	// restaurant's collection.
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict is returned when the order status changed between
	// read and conditional write.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// Order is a placed customer order. Everything except Status and UpdatedAt is
// written once at creation; the stored totals are authoritative and are never
// recomputed from line items.
type Order struct {
	ID              string
	UserID          string
	CustomerName    string
	CustomerPhone   string
	RestaurantID    string
	RestaurantName  string
	Items           []LineItem
	Subtotal        decimal.Decimal
	DeliveryFee     decimal.Decimal
	Tip             decimal.Decimal
	Total           decimal.Decimal
	DeliveryAddress string
	PaymentMethod   string
	DeliveryTier    pricing.Tier
	Notes           string
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LineItem is the persisted record of one catalog item in an order. Name and
// prices are copies, so historical orders render even after the catalog
// changes.
type LineItem struct {
	CatalogItemID string             `json:"catalog_item_id"`
	Name          string             `json:"name"`
	UnitPrice     decimal.Decimal    `json:"unit_price"`
	OriginalPrice decimal.Decimal    `json:"original_price"`
	Quantity      int                `json:"quantity"`
	Promotion     *promotion.Applied `json:"promotion,omitempty"`
}

// Customer is the placing user's profile as copied into the order.
type Customer struct {
	ID    string
	Name  string
	Phone string
}

// Repository defines persistence operations for orders. Orders are kept per
// restaurant; lookups are keyed by both ids.
type Repository interface {
	// Create stores the full order in a single atomic write.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, orderID, restaurantID string) (*Order, error)
	// UpdateStatus sets status and updated-at only if the stored status is
	// still from, returning ErrStatusConflict otherwise.
	UpdateStatus(ctx context.Context, orderID, restaurantID string, from, to Status, at time.Time) error
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// ListByRestaurant returns the restaurant's orders, newest first. An empty
	// status returns all of them.
	ListByRestaurant(ctx context.Context, restaurantID string, status Status) ([]Order, error)
}

// Directory resolves display data copied into new orders.
type Directory interface {
	Customer(ctx context.Context, userID string) (*Customer, error)
	RestaurantName(ctx context.Context, restaurantID string) (string, error)
}
