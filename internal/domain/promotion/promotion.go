package promotion

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Promotion is a restaurant-authored discount. The discount itself is
// expressed only as a display label; a percentage is derived from it by
// ParsePercent.
type Promotion struct {
	ID                   string
	RestaurantID         string
	ItemIDs              []string
	Title                string
	DiscountLabel        string
	Active               bool
	ExpiresAt            *time.Time
	MinOrder             *decimal.Decimal
	DeliveryTimeOverride string
}

// EffectiveAt reports whether the promotion is active and not expired at t.
func (p *Promotion) EffectiveAt(t time.Time) bool {
	if !p.Active {
		return false
	}
	return p.ExpiresAt == nil || p.ExpiresAt.After(t)
}

// AppliesTo reports whether the promotion covers the given catalog item of
// the given restaurant. An empty item list covers every item.
func (p *Promotion) AppliesTo(restaurantID, itemID string) bool {
	if p.RestaurantID != restaurantID {
		return false
	}
	return len(p.ItemIDs) == 0 || slices.Contains(p.ItemIDs, itemID)
}

// Applied is the promotion metadata frozen into a price snapshot. It is kept
// for display and is never resolved again.
type Applied struct {
	ID                   string           `json:"id"`
	Title                string           `json:"title"`
	Label                string           `json:"label"`
	Percent              int              `json:"percent"`
	MinOrder             *decimal.Decimal `json:"min_order,omitempty"`
	DeliveryTimeOverride string           `json:"delivery_time_override,omitempty"`
}

// Snapshot is the unit price of a catalog item captured when it was added to
// a cart.
type Snapshot struct {
	OriginalPrice   decimal.Decimal `json:"original_price"`
	DiscountedPrice decimal.Decimal `json:"discounted_price"`
	HasPromotion    bool            `json:"has_promotion"`
	Promotion       *Applied        `json:"promotion,omitempty"`
}

// Directory provides the promotions of a restaurant that are effective at a
// point in time, in the order they should be considered.
type Directory interface {
	Effective(ctx context.Context, restaurantID string, at time.Time) ([]Promotion, error)
}
