package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/cart"
	"github.com/xenking/bistro/internal/domain/catalog"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/pricing"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Code: code, Message: msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}

// statusOf maps domain errors to HTTP status codes. Anything not listed is a
// storage or programming failure.
func statusOf(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrCustomerNotFound),
		errors.Is(err, order.ErrRestaurantNotFound),
		errors.Is(err, cart.ErrItemNotInCart):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrCrossRestaurantCart),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrStatusConflict):
		return http.StatusConflict
	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrMixedRestaurants),
		errors.Is(err, order.ErrDeliveryAddressRequired),
		errors.Is(err, order.ErrPaymentMethodRequired),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrItemUnavailable),
		errors.Is(err, pricing.ErrUnknownDeliveryTier),
		errors.Is(err, pricing.ErrUnknownTipPreset),
		errors.Is(err, pricing.ErrUnknownTipKind):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Internal failures are logged
// and hidden from the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, code, "internal error")
		return
	}

	msg := err.Error()
	var (
		crossErr      *cart.CrossRestaurantError
		transitionErr *order.TransitionError
	)
	switch {
	case errors.As(err, &crossErr):
		msg = crossErr.Error() + "; clear your cart first"
	case errors.As(err, &transitionErr):
		msg = transitionErr.Error()
	}
	writeError(w, code, msg)
}
