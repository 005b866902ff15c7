package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/orders"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message, details string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// handleServiceError converts a service error into a response. Errors the
// client cannot act on get a generic body; the cause goes to the log.
func handleServiceError(w http.ResponseWriter, r *http.Request, l *zap.Logger, err error) {
	var stockErr *domain.StockNotEnoughError

	switch {
	case errors.As(err, &stockErr):
		respondErrorDetails(w, http.StatusBadRequest, "stock_not_enough", domain.ErrStockNotEnough.Error(), stockErr.Error())
	case errors.Is(err, domain.ErrStockNotEnough):
		respondError(w, http.StatusBadRequest, "stock_not_enough", err.Error())
	case errors.Is(err, domain.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, domain.ErrCartItemNotFound):
		respondError(w, http.StatusNotFound, "cart_item_not_found", err.Error())
	case errors.Is(err, orders.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, domain.ErrCartEmpty):
		respondError(w, http.StatusBadRequest, "cart_empty", err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrInvalidProduct):
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	default:
		logger.Error(r.Context(), l, "request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
