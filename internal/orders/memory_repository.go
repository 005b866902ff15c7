package orders

import (
	"context"
	"sort"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
)

// MemoryRepository keeps order history in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*domain.Order
}

var _ OrderRepository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[uuid.UUID]*domain.Order)}
}

func (r *MemoryRepository) SaveOrder(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return ErrDuplicateOrder
	}
	r.orders[order.ID] = copyOrder(order)
	return nil
}

func (r *MemoryRepository) GetOrder(_ context.Context, userID int64, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok || order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (r *MemoryRepository) ListOrdersByUser(_ context.Context, userID int64) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Order, 0)
	for _, order := range r.orders {
		if order.UserID == userID {
			out = append(out, copyOrder(order))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return &cp
}
