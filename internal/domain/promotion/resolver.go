package promotion

import (
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/catalog"
)

// Precision is the number of decimal places prices are rounded to. Prices
// are whole currency units.
const Precision = 0

var (
	hundred = decimal.NewFromInt(100)

	percentPattern = regexp.MustCompile(`(\d+)\s*%`)
)

// ParsePercent extracts the whole percentage preceding a '%' sign in a
// discount label ("15% OFF" -> 15). Labels without one yield 0. The result
// is clamped to [0, 100].
func ParsePercent(label string) int {
	m := percentPattern.FindStringSubmatch(label)
	if m == nil {
		return 0
	}
	pct, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return min(max(pct, 0), 100)
}

// FirstApplicable returns the first promotion in promos that is effective at
// t and covers item, or nil. Caller ordering is the tie-break: the first
// match wins even when a later promotion would discount more.
func FirstApplicable(item catalog.Item, promos []Promotion, t time.Time) *Promotion {
	for i := range promos {
		p := &promos[i]
		if p.EffectiveAt(t) && p.AppliesTo(item.RestaurantID, item.ID) {
			return p
		}
	}
	return nil
}

// Resolve computes the price snapshot for item under the given promotions.
// It has no side effects.
func Resolve(item catalog.Item, promos []Promotion, t time.Time) Snapshot {
	price := floorAtZero(item.Price)
	snap := Snapshot{
		OriginalPrice:   price,
		DiscountedPrice: price,
	}

	p := FirstApplicable(item, promos, t)
	if p == nil {
		return snap
	}

	pct := ParsePercent(p.DiscountLabel)
	snap.HasPromotion = true
	snap.DiscountedPrice = applyPercent(price, pct)
	snap.Promotion = &Applied{
		ID:                   p.ID,
		Title:                p.Title,
		Label:                p.DiscountLabel,
		Percent:              pct,
		MinOrder:             p.MinOrder,
		DeliveryTimeOverride: p.DeliveryTimeOverride,
	}
	return snap
}

// applyPercent returns price reduced by pct percent, rounded half-up to
// Precision and never above price.
func applyPercent(price decimal.Decimal, pct int) decimal.Decimal {
	if pct == 0 {
		return price
	}
	discounted := price.Mul(decimal.NewFromInt(int64(100 - pct))).Div(hundred).Round(Precision)
	return decimal.Min(floorAtZero(discounted), price)
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
