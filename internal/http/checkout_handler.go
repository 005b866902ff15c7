package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.uber.org/zap"
)

type CheckoutService interface {
	Checkout(ctx context.Context, userID int64) (*domain.Order, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCheckoutHandler(checkout CheckoutService, timeout time.Duration, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
		logger:   logger,
	}
}

// POST /api/v1/cart/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	order, err := h.checkout.Checkout(ctx, userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}
