// Package pricing derives order totals from line items and the customer's
// delivery tier and tip selections. Everything here is deterministic and
// independent of storage.
package pricing

import (
	"slices"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownDeliveryTier is returned for a tier missing from the fee table.
	ErrUnknownDeliveryTier = errors.New("unknown delivery tier")
	// ErrUnknownTipPreset is returned for a preset tip amount that is not offered.
	ErrUnknownTipPreset = errors.New("unknown tip preset")
	// ErrUnknownTipKind is returned for a tip selection kind that is not supported.
	ErrUnknownTipKind = errors.New("unknown tip kind")
)

// Tier is a delivery-time tier label.
type Tier string

const (
	TierStandard Tier = "standard"
	TierExpress  Tier = "express"
)

// FeeTable holds the configured delivery fees.
type FeeTable struct {
	Base             decimal.Decimal
	ExpressSurcharge decimal.Decimal
}

// DefaultFeeTable returns the stock fee table: 3000 base, 2000 express surcharge.
func DefaultFeeTable() FeeTable {
	return FeeTable{
		Base:             decimal.NewFromInt(3000),
		ExpressSurcharge: decimal.NewFromInt(2000),
	}
}

// DefaultTipPresets returns the stock fixed tip amounts.
func DefaultTipPresets() []decimal.Decimal {
	return []decimal.Decimal{
		decimal.NewFromInt(1000),
		decimal.NewFromInt(2000),
		decimal.NewFromInt(5000),
	}
}

// TipKind enumerates the ways a customer may choose a tip.
type TipKind string

const (
	TipNone   TipKind = "none"
	TipPreset TipKind = "preset"
	TipCustom TipKind = "custom"
)

// TipSelection is the customer's tip choice. Preset is used with TipPreset,
// Custom holds raw user input for TipCustom.
type TipSelection struct {
	Kind   TipKind
	Preset decimal.Decimal
	Custom string
}

// Line is the pricing view of a line item.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals is the full price breakdown of an order.
type Totals struct {
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Tip         decimal.Decimal
	Total       decimal.Decimal
}

// Subtotal returns the sum of unit price times quantity over lines.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// Total returns subtotal + deliveryFee + tip.
func Total(subtotal, deliveryFee, tip decimal.Decimal) decimal.Decimal {
	return subtotal.Add(deliveryFee).Add(tip)
}

// ParseCustomTip parses free-form tip input as a non-negative integer.
// Anything else yields zero.
func ParseCustomTip(input string) decimal.Decimal {
	n, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
	if err != nil || n < 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(n)
}

// Calculator prices deliveries and tips from configuration.
type Calculator struct {
	fees    FeeTable
	presets []decimal.Decimal
}

// NewCalculator creates a Calculator with the given fee table and tip presets.
func NewCalculator(fees FeeTable, presets []decimal.Decimal) *Calculator {
	return &Calculator{
		fees:    fees,
		presets: slices.Clone(presets),
	}
}

// Presets returns the offered fixed tip amounts.
func (c *Calculator) Presets() []decimal.Decimal {
	return slices.Clone(c.presets)
}

// DeliveryFee returns the fee for tier.
func (c *Calculator) DeliveryFee(tier Tier) (decimal.Decimal, error) {
	switch tier {
	case TierStandard:
		return c.fees.Base, nil
	case TierExpress:
		return c.fees.Base.Add(c.fees.ExpressSurcharge), nil
	default:
		return decimal.Zero, errors.Wrapf(ErrUnknownDeliveryTier, "tier %q", tier)
	}
}

// Tip returns the tip amount for sel. An empty kind means no tip.
func (c *Calculator) Tip(sel TipSelection) (decimal.Decimal, error) {
	switch sel.Kind {
	case TipNone, "":
		return decimal.Zero, nil
	case TipPreset:
		if slices.ContainsFunc(c.presets, sel.Preset.Equal) {
			return sel.Preset, nil
		}
		return decimal.Zero, errors.Wrapf(ErrUnknownTipPreset, "preset %s", sel.Preset)
	case TipCustom:
		return ParseCustomTip(sel.Custom), nil
	default:
		return decimal.Zero, errors.Wrapf(ErrUnknownTipKind, "kind %q", sel.Kind)
	}
}

// Quote computes the full breakdown for lines under the given selections.
func (c *Calculator) Quote(lines []Line, tier Tier, tip TipSelection) (Totals, error) {
	fee, err := c.DeliveryFee(tier)
	if err != nil {
		return Totals{}, err
	}
	tipAmount, err := c.Tip(tip)
	if err != nil {
		return Totals{}, err
	}

	subtotal := Subtotal(lines)
	return Totals{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Tip:         tipAmount,
		Total:       Total(subtotal, fee, tipAmount),
	}, nil
}
