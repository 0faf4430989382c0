package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/pricing"
)

const qrSize = 256

func (req *checkoutRequest) tip() pricing.TipSelection {
	if req.Tip == nil {
		return pricing.TipSelection{}
	}
	sel := pricing.TipSelection{
		Kind:   pricing.TipKind(req.Tip.Kind),
		Custom: req.Tip.Custom,
	}
	if req.Tip.Amount != nil {
		sel.Preset = decimal.NewFromFloat(*req.Tip.Amount)
		if sel.Kind == pricing.TipCustom && sel.Custom == "" {
			sel.Custom = strconv.FormatFloat(*req.Tip.Amount, 'f', -1, 64)
		}
	}
	return sel
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tier := pricing.Tier(req.DeliveryTier)
	if tier == "" {
		tier = pricing.TierStandard
	}

	res, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		UserID:          auth.UserID(r.Context()),
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
		DeliveryTier:    tier,
		Tip:             req.tip(),
		Notes:           req.Notes,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:      res.OrderID,
		RestaurantID: res.RestaurantID,
	})
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders, h.orders.Policy()))
}

func (h *Handler) listRestaurantOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListForRestaurant(r.Context(),
		mux.Vars(r)["restaurantId"],
		auth.UserID(r.Context()),
		order.Status(r.URL.Query().Get("status")),
	)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders, h.orders.Policy()))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	o, err := h.orders.GetOrder(r.Context(), vars["orderId"], vars["restaurantId"], auth.UserID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o, h.orders.Policy()))
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	vars := mux.Vars(r)
	o, err := h.orders.UpdateStatus(r.Context(), order.UpdateStatusRequest{
		OrderID:      vars["orderId"],
		RestaurantID: vars["restaurantId"],
		Status:       order.Status(req.Status),
		Actor:        auth.UserID(r.Context()),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o, h.orders.Policy()))
}

// HandoffReference is the payload encoded in an order's QR code, scanned by
// couriers at pickup.
func HandoffReference(restaurantID, orderID string) string {
	return "bistro:order:" + restaurantID + ":" + orderID
}

func (h *Handler) orderQR(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	o, err := h.orders.GetOrder(r.Context(), vars["orderId"], vars["restaurantId"], auth.UserID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	png, err := qrcode.Encode(HandoffReference(o.RestaurantID, o.ID), qrcode.Medium, qrSize)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
