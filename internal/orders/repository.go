package orders

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order already recorded")
)

// OrderRepository stores the read side of placed orders.
type OrderRepository interface {
	SaveOrder(ctx context.Context, order *domain.Order) error
	// GetOrder returns ErrOrderNotFound for orders of other users.
	GetOrder(ctx context.Context, userID int64, id uuid.UUID) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]*domain.Order, error)
}
