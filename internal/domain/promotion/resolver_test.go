package promotion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bistro/internal/domain/catalog"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{label: "15% OFF", want: 15},
		{label: "Save 20 % today", want: 20},
		{label: "-30%", want: 30},
		{label: "Free drink", want: 0},
		{label: "", want: 0},
		{label: "150% bonus", want: 100},
		{label: "10% then 20%", want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePercent(tt.label))
		})
	}
}

func TestResolve(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	pizza := catalog.Item{ID: "pizza", RestaurantID: "r1", Name: "Pizza", Price: d("20000"), Available: true}

	tests := []struct {
		name          string
		item          catalog.Item
		promos        []Promotion
		wantPrice     decimal.Decimal
		wantPromotion bool
		wantPromoID   string
	}{
		{
			name:      "no promotions keeps original price",
			item:      pizza,
			wantPrice: d("20000"),
		},
		{
			name: "percentage label discounts",
			item: pizza,
			promos: []Promotion{
				{ID: "p15", RestaurantID: "r1", DiscountLabel: "15% OFF", Active: true},
			},
			wantPrice:     d("17000"),
			wantPromotion: true,
			wantPromoID:   "p15",
		},
		{
			name: "fixed label keeps price but marks promotion",
			item: pizza,
			promos: []Promotion{
				{ID: "drink", RestaurantID: "r1", DiscountLabel: "Free drink", Active: true},
			},
			wantPrice:     d("20000"),
			wantPromotion: true,
			wantPromoID:   "drink",
		},
		{
			name: "inactive promotion ignored",
			item: pizza,
			promos: []Promotion{
				{ID: "off", RestaurantID: "r1", DiscountLabel: "50%", Active: false},
			},
			wantPrice: d("20000"),
		},
		{
			name: "expired promotion ignored",
			item: pizza,
			promos: []Promotion{
				{ID: "old", RestaurantID: "r1", DiscountLabel: "50%", Active: true, ExpiresAt: &past},
			},
			wantPrice: d("20000"),
		},
		{
			name: "promotion expiring exactly now is not effective",
			item: pizza,
			promos: []Promotion{
				{ID: "edge", RestaurantID: "r1", DiscountLabel: "50%", Active: true, ExpiresAt: &now},
			},
			wantPrice: d("20000"),
		},
		{
			name: "promotion with future expiry applies",
			item: pizza,
			promos: []Promotion{
				{ID: "soon", RestaurantID: "r1", DiscountLabel: "50%", Active: true, ExpiresAt: &future},
			},
			wantPrice:     d("10000"),
			wantPromotion: true,
			wantPromoID:   "soon",
		},
		{
			name: "other restaurant ignored",
			item: pizza,
			promos: []Promotion{
				{ID: "r2", RestaurantID: "r2", DiscountLabel: "50%", Active: true},
			},
			wantPrice: d("20000"),
		},
		{
			name: "item list excludes item",
			item: pizza,
			promos: []Promotion{
				{ID: "pasta", RestaurantID: "r1", ItemIDs: []string{"pasta"}, DiscountLabel: "50%", Active: true},
			},
			wantPrice: d("20000"),
		},
		{
			name: "item list includes item",
			item: pizza,
			promos: []Promotion{
				{ID: "both", RestaurantID: "r1", ItemIDs: []string{"pasta", "pizza"}, DiscountLabel: "25%", Active: true},
			},
			wantPrice:     d("15000"),
			wantPromotion: true,
			wantPromoID:   "both",
		},
		{
			name: "first applicable promotion wins",
			item: pizza,
			promos: []Promotion{
				{ID: "expired", RestaurantID: "r1", DiscountLabel: "90%", Active: true, ExpiresAt: &past},
				{ID: "ten", RestaurantID: "r1", DiscountLabel: "10%", Active: true},
				{ID: "fifty", RestaurantID: "r1", DiscountLabel: "50%", Active: true},
			},
			wantPrice:     d("18000"),
			wantPromotion: true,
			wantPromoID:   "ten",
		},
		{
			name: "fractional result rounds half up",
			item: catalog.Item{ID: "x", RestaurantID: "r1", Price: d("1001")},
			promos: []Promotion{
				{ID: "half", RestaurantID: "r1", DiscountLabel: "50%", Active: true},
			},
			wantPrice:     d("501"),
			wantPromotion: true,
			wantPromoID:   "half",
		},
		{
			name: "fractional result rounds down below half",
			item: catalog.Item{ID: "x", RestaurantID: "r1", Price: d("999")},
			promos: []Promotion{
				{ID: "p15", RestaurantID: "r1", DiscountLabel: "15% OFF", Active: true},
			},
			// 999 * 0.85 = 849.15
			wantPrice:     d("849"),
			wantPromotion: true,
			wantPromoID:   "p15",
		},
		{
			name: "over 100 percent is clamped to free",
			item: pizza,
			promos: []Promotion{
				{ID: "all", RestaurantID: "r1", DiscountLabel: "200% off", Active: true},
			},
			wantPrice:     d("0"),
			wantPromotion: true,
			wantPromoID:   "all",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.item, tt.promos, now)

			assert.True(t, tt.item.Price.Equal(got.OriginalPrice))
			assert.True(t, tt.wantPrice.Equal(got.DiscountedPrice),
				"expected price %s, got %s", tt.wantPrice, got.DiscountedPrice)
			assert.Equal(t, tt.wantPromotion, got.HasPromotion)
			if !tt.wantPromotion {
				assert.Nil(t, got.Promotion)
				return
			}
			require.NotNil(t, got.Promotion)
			assert.Equal(t, tt.wantPromoID, got.Promotion.ID)
		})
	}
}

func TestResolve_CopiesPromotionMetadata(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	minOrder := d("15000")
	item := catalog.Item{ID: "pizza", RestaurantID: "r1", Price: d("20000")}

	got := Resolve(item, []Promotion{{
		ID:                   "p15",
		RestaurantID:         "r1",
		Title:                "Lunch deal",
		DiscountLabel:        "15% OFF",
		Active:               true,
		MinOrder:             &minOrder,
		DeliveryTimeOverride: "20-30 min",
	}}, now)

	require.NotNil(t, got.Promotion)
	assert.Equal(t, Applied{
		ID:                   "p15",
		Title:                "Lunch deal",
		Label:                "15% OFF",
		Percent:              15,
		MinOrder:             &minOrder,
		DeliveryTimeOverride: "20-30 min",
	}, *got.Promotion)
}

func TestResolve_NeverIncreasesPrice(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	prices := []string{"0", "1", "3", "99", "999", "1001", "20000", "10.6", "12345.5"}
	labels := []string{"", "0%", "1%", "15% OFF", "33%", "50%", "99%", "100%", "Free drink"}

	for _, price := range prices {
		for _, label := range labels {
			item := catalog.Item{ID: "i", RestaurantID: "r", Price: d(price)}
			promos := []Promotion{{ID: "p", RestaurantID: "r", DiscountLabel: label, Active: true}}

			got := Resolve(item, promos, now)
			assert.True(t, got.DiscountedPrice.LessThanOrEqual(got.OriginalPrice),
				"price %s label %q: %s > %s", price, label, got.DiscountedPrice, got.OriginalPrice)
			assert.False(t, got.DiscountedPrice.IsNegative())

			none := Resolve(item, nil, now)
			assert.False(t, none.HasPromotion)
			assert.True(t, none.DiscountedPrice.Equal(none.OriginalPrice))
		}
	}
}
