package order

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/bistro/internal/domain/cart"
	"github.com/xenking/bistro/internal/domain/pricing"
)

// Sentinel errors for order construction.
var (
	ErrEmptyCart               = errors.New("cart is empty")
	ErrMixedRestaurants        = errors.New("cart items belong to more than one restaurant")
	ErrDeliveryAddressRequired = errors.New("delivery address required")
	ErrPaymentMethodRequired   = errors.New("payment method required")
)

// Draft holds everything needed to build an order.
type Draft struct {
	Customer        Customer
	RestaurantName  string
	Items           []cart.Item
	DeliveryAddress string
	PaymentMethod   string
	DeliveryTier    pricing.Tier
	Tip             pricing.TipSelection
	Notes           string
}

// Factory builds immutable orders from cart contents.
type Factory struct {
	calc  *pricing.Calculator
	now   func() time.Time
	newID func() string
}

// NewFactory creates a Factory pricing orders with calc.
func NewFactory(calc *pricing.Calculator) *Factory {
	return &Factory{
		calc:  calc,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Build maps the draft's cart items to line items, copying the frozen
// snapshot prices and promotion metadata verbatim, and prices the order.
// Promotions are never resolved again here: what the customer saw when
// adding to the cart is what they pay.
func (f *Factory) Build(d Draft) (*Order, error) {
	if len(d.Items) == 0 {
		return nil, ErrEmptyCart
	}
	restaurantID := d.Items[0].RestaurantID
	for _, it := range d.Items[1:] {
		if it.RestaurantID != restaurantID {
			return nil, ErrMixedRestaurants
		}
	}

	address := strings.TrimSpace(d.DeliveryAddress)
	if address == "" {
		return nil, ErrDeliveryAddressRequired
	}
	payment := strings.TrimSpace(d.PaymentMethod)
	if payment == "" {
		return nil, ErrPaymentMethodRequired
	}

	items := make([]LineItem, len(d.Items))
	lines := make([]pricing.Line, len(d.Items))
	for i, it := range d.Items {
		if it.Quantity <= 0 {
			return nil, errors.Wrapf(cart.ErrInvalidQuantity, "item %s", it.CatalogItemID)
		}
		items[i] = LineItem{
			CatalogItemID: it.CatalogItemID,
			Name:          it.Name,
			UnitPrice:     it.Snapshot.DiscountedPrice,
			OriginalPrice: it.Snapshot.OriginalPrice,
			Quantity:      it.Quantity,
			Promotion:     it.Snapshot.Promotion,
		}
		lines[i] = pricing.Line{
			UnitPrice: it.Snapshot.DiscountedPrice,
			Quantity:  it.Quantity,
		}
	}

	totals, err := f.calc.Quote(lines, d.DeliveryTier, d.Tip)
	if err != nil {
		return nil, errors.Wrap(err, "price order")
	}

	now := f.now()
	return &Order{
		ID:              f.newID(),
		UserID:          d.Customer.ID,
		CustomerName:    d.Customer.Name,
		CustomerPhone:   d.Customer.Phone,
		RestaurantID:    restaurantID,
		RestaurantName:  d.RestaurantName,
		Items:           items,
		Subtotal:        totals.Subtotal,
		DeliveryFee:     totals.DeliveryFee,
		Tip:             totals.Tip,
		Total:           totals.Total,
		DeliveryAddress: address,
		PaymentMethod:   payment,
		DeliveryTier:    d.DeliveryTier,
		Notes:           strings.TrimSpace(d.Notes),
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}
