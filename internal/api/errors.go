package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/safar/shop-checkout/internal/basket"
	"github.com/safar/shop-checkout/internal/checkout"
	"github.com/safar/shop-checkout/internal/database"
	"github.com/safar/shop-checkout/internal/payment"
	"github.com/safar/shop-checkout/internal/store"
)

var errBadRequestBody = errors.New("request body invalid")

// statusFor maps domain errors to the HTTP status and the message shown to the buyer.
func statusFor(err error) (int, string) {
	var rejection *payment.RejectionError
	switch {
	case errors.As(err, &rejection):
		return http.StatusBadRequest, rejection.Message
	case errors.Is(err, errBadRequestBody):
		return http.StatusBadRequest, "Request body is invalid"
	case errors.Is(err, checkout.ErrEmptyBasket):
		return http.StatusBadRequest, "The basket is empty"
	case errors.Is(err, checkout.ErrInvalidDelivery), errors.Is(err, checkout.ErrInvalidPayment):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, basket.ErrOutOfStock):
		return http.StatusBadRequest, "The product is out of stock"
	case errors.Is(err, basket.ErrInvalidQuantity):
		return http.StatusBadRequest, "Count must be positive"
	case errors.Is(err, basket.ErrNotForSale):
		return http.StatusBadRequest, "The product is not for sale"
	case errors.Is(err, store.ErrInvalidCursor):
		return http.StatusBadRequest, "Cursor is invalid"
	case errors.Is(err, database.ErrProductNotFound):
		return http.StatusNotFound, "Product not found"
	case errors.Is(err, database.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, database.ErrOrderPaid):
		return http.StatusConflict, "The order is already paid"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeMessage(w, status, msg)
}
