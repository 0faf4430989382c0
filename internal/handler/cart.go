package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/cart"
)

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.carts.AddToCart(r.Context(), cart.AddRequest{
		UserID:        auth.UserID(r.Context()),
		CatalogItemID: req.ItemID,
		RestaurantID:  req.RestaurantID,
		Quantity:      req.Quantity,
	}); err != nil {
		respondError(w, r, err)
		return
	}

	// Respond with the whole cart so clients render totals in one round trip.
	items, err := h.carts.GetCart(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(items))
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	items, err := h.carts.GetCart(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(items))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if err := h.carts.RemoveItem(r.Context(), userID, mux.Vars(r)["itemId"]); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.ClearCart(r.Context(), auth.UserID(r.Context())); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
