package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.uber.org/zap"
)

type CartService interface {
	AddToCart(ctx context.Context, userID, productID int64, quantity int) (*domain.CartItem, error)
	UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) (*domain.CartItem, error)
	RemoveItem(ctx context.Context, userID, itemID int64) error
	ListCart(ctx context.Context, userID int64) (*domain.Cart, error)
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		logger:  logger,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	UserID        int64             `json:"user_id"`
	Items         []domain.CartLine `json:"items"`
	TotalQuantity int               `json:"total_quantity"`
	TotalAmount   float64           `json:"total_amount"`
}

func newCartResponse(c *domain.Cart) CartResponse {
	items := c.Lines
	if items == nil {
		items = []domain.CartLine{}
	}
	return CartResponse{
		UserID:        c.UserID,
		Items:         items,
		TotalQuantity: c.TotalQuantity(),
		TotalAmount:   c.TotalAmount(),
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.carts.ListCart(ctx, userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, newCartResponse(cart))
}

// POST /api/v1/cart
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if !decodeAndValidate(w, r, &req) {
		return
	}

	item, err := h.carts.AddToCart(ctx, userID, req.ProductID, req.Quantity)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, item)
}

// PUT /api/v1/cart/{cart_item_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	itemID, ok := pathID(w, r, "cart_item_id")
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if !decodeAndValidate(w, r, &req) {
		return
	}

	item, err := h.carts.UpdateQuantity(ctx, userID, itemID, req.Quantity)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, item)
}

// DELETE /api/v1/cart/{cart_item_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	itemID, ok := pathID(w, r, "cart_item_id")
	if !ok {
		return
	}

	if err := h.carts.RemoveItem(ctx, userID, itemID); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
