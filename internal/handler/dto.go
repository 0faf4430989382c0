package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/cart"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/promotion"
)

type addCartItemRequest struct {
	ItemID       string `json:"itemId"`
	RestaurantID string `json:"restaurantId"`
	Quantity     int    `json:"quantity"`
}

type promotionResponse struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Label                string   `json:"label"`
	Percent              int      `json:"percent"`
	MinOrder             *float64 `json:"minOrder,omitempty"`
	DeliveryTimeOverride string   `json:"deliveryTimeOverride,omitempty"`
}

type cartItemResponse struct {
	ItemID        string             `json:"itemId"`
	RestaurantID  string             `json:"restaurantId"`
	Name          string             `json:"name"`
	Quantity      int                `json:"quantity"`
	OriginalPrice float64            `json:"originalPrice"`
	UnitPrice     float64            `json:"unitPrice"`
	HasPromotion  bool               `json:"hasPromotion"`
	Promotion     *promotionResponse `json:"promotion,omitempty"`
	LineTotal     float64            `json:"lineTotal"`
	AddedAt       time.Time          `json:"addedAt"`
}

type cartResponse struct {
	RestaurantID string             `json:"restaurantId,omitempty"`
	Items        []cartItemResponse `json:"items"`
	Subtotal     float64            `json:"subtotal"`
}

type tipRequest struct {
	Kind   string   `json:"kind"`
	Amount *float64 `json:"amount,omitempty"`
	Custom string   `json:"custom,omitempty"`
}

type checkoutRequest struct {
	DeliveryAddress string      `json:"deliveryAddress"`
	PaymentMethod   string      `json:"paymentMethod"`
	DeliveryTier    string      `json:"deliveryTier"`
	Tip             *tipRequest `json:"tip,omitempty"`
	Notes           string      `json:"notes,omitempty"`
}

type checkoutResponse struct {
	OrderID      string `json:"orderId"`
	RestaurantID string `json:"restaurantId"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type orderItemResponse struct {
	ItemID        string             `json:"itemId"`
	Name          string             `json:"name"`
	Quantity      int                `json:"quantity"`
	UnitPrice     float64            `json:"unitPrice"`
	OriginalPrice float64            `json:"originalPrice"`
	Promotion     *promotionResponse `json:"promotion,omitempty"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	CustomerName    string              `json:"customerName"`
	CustomerPhone   string              `json:"customerPhone"`
	RestaurantID    string              `json:"restaurantId"`
	RestaurantName  string              `json:"restaurantName"`
	Items           []orderItemResponse `json:"items"`
	Subtotal        float64             `json:"subtotal"`
	DeliveryFee     float64             `json:"deliveryFee"`
	Tip             float64             `json:"tip"`
	Total           float64             `json:"total"`
	DeliveryAddress string              `json:"deliveryAddress"`
	PaymentMethod   string              `json:"paymentMethod"`
	DeliveryTier    string              `json:"deliveryTier"`
	Notes           string              `json:"notes,omitempty"`
	Status          string              `json:"status"`
	NextStatuses    []string            `json:"nextStatuses"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func toPromotionResponse(p *promotion.Applied) *promotionResponse {
	if p == nil {
		return nil
	}
	resp := &promotionResponse{
		ID:                   p.ID,
		Title:                p.Title,
		Label:                p.Label,
		Percent:              p.Percent,
		DeliveryTimeOverride: p.DeliveryTimeOverride,
	}
	if p.MinOrder != nil {
		v := p.MinOrder.InexactFloat64()
		resp.MinOrder = &v
	}
	return resp
}

func toCartResponse(items []cart.Item) cartResponse {
	resp := cartResponse{Items: make([]cartItemResponse, len(items))}
	subtotal := decimal.Zero
	for i, it := range items {
		line := it.LineTotal()
		subtotal = subtotal.Add(line)
		resp.Items[i] = cartItemResponse{
			ItemID:        it.CatalogItemID,
			RestaurantID:  it.RestaurantID,
			Name:          it.Name,
			Quantity:      it.Quantity,
			OriginalPrice: it.Snapshot.OriginalPrice.InexactFloat64(),
			UnitPrice:     it.Snapshot.DiscountedPrice.InexactFloat64(),
			HasPromotion:  it.Snapshot.HasPromotion,
			Promotion:     toPromotionResponse(it.Snapshot.Promotion),
			LineTotal:     line.InexactFloat64(),
			AddedAt:       it.AddedAt,
		}
	}
	if len(items) > 0 {
		resp.RestaurantID = items[0].RestaurantID
	}
	resp.Subtotal = subtotal.InexactFloat64()
	return resp
}

func toOrderResponse(o *order.Order, policy order.Policy) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		CustomerName:    o.CustomerName,
		CustomerPhone:   o.CustomerPhone,
		RestaurantID:    o.RestaurantID,
		RestaurantName:  o.RestaurantName,
		Items:           make([]orderItemResponse, len(o.Items)),
		Subtotal:        o.Subtotal.InexactFloat64(),
		DeliveryFee:     o.DeliveryFee.InexactFloat64(),
		Tip:             o.Tip.InexactFloat64(),
		Total:           o.Total.InexactFloat64(),
		DeliveryAddress: o.DeliveryAddress,
		PaymentMethod:   o.PaymentMethod,
		DeliveryTier:    string(o.DeliveryTier),
		Notes:           o.Notes,
		Status:          o.Status.String(),
		NextStatuses:    []string{},
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for i, it := range o.Items {
		resp.Items[i] = orderItemResponse{
			ItemID:        it.CatalogItemID,
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice.InexactFloat64(),
			OriginalPrice: it.OriginalPrice.InexactFloat64(),
			Promotion:     toPromotionResponse(it.Promotion),
		}
	}
	for _, s := range policy.Next(o.Status) {
		resp.NextStatuses = append(resp.NextStatuses, s.String())
	}
	return resp
}

func toOrderList(orders []order.Order, policy order.Policy) []orderResponse {
	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i], policy)
	}
	return out
}
