package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	repo    orders.OrderRepository
	timeout time.Duration
	logger  *zap.Logger
}

func NewOrdersHandler(repo orders.OrderRepository, timeout time.Duration, logger *zap.Logger) *OrdersHandler {
	return &OrdersHandler{
		repo:    repo,
		timeout: timeout,
		logger:  logger,
	}
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	list, err := h.repo.ListOrdersByUser(ctx, userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"orders": list})
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return
	}

	order, err := h.repo.GetOrder(ctx, userID, orderID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}
