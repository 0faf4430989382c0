// Package handler exposes the cart and order services over HTTP JSON.
package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xenking/bistro/internal/domain/cart"
	"github.com/xenking/bistro/internal/domain/order"
)

// Handler serves the /api routes, delegating business logic to the cart and
// order services. Callers are identified by the principal that
// Authenticator stores in the request context.
type Handler struct {
	carts  *cart.Service
	orders *order.Service
}

// NewHandler constructs a Handler with the required domain services.
func NewHandler(carts *cart.Service, orders *order.Service) *Handler {
	return &Handler{
		carts:  carts,
		orders: orders,
	}
}

// Routes registers the API routes on r.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/cart", h.getCart).Methods(http.MethodGet)
	r.HandleFunc("/cart", h.clearCart).Methods(http.MethodDelete)
	r.HandleFunc("/cart/items", h.addCartItem).Methods(http.MethodPost)
	r.HandleFunc("/cart/items/{itemId}", h.removeCartItem).Methods(http.MethodDelete)

	r.HandleFunc("/checkout", h.checkout).Methods(http.MethodPost)
	r.HandleFunc("/orders", h.listMyOrders).Methods(http.MethodGet)

	r.HandleFunc("/restaurants/{restaurantId}/orders", h.listRestaurantOrders).Methods(http.MethodGet)
	r.HandleFunc("/restaurants/{restaurantId}/orders/{orderId}", h.getOrder).Methods(http.MethodGet)
	r.HandleFunc("/restaurants/{restaurantId}/orders/{orderId}/status", h.updateOrderStatus).Methods(http.MethodPatch)
	r.HandleFunc("/restaurants/{restaurantId}/orders/{orderId}/qr", h.orderQR).Methods(http.MethodGet)
}
