package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CheckoutService struct {
	repo     repository.Repository
	cache    cache.CartCache
	logger   *zap.Logger
	currency string
	now      func() time.Time
}

func NewCheckoutService(repo repository.Repository, c cache.CartCache, l *zap.Logger, currency string) *CheckoutService {
	if c == nil {
		c = cache.NopCache{}
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &CheckoutService{
		repo:     repo,
		cache:    c,
		logger:   l,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// errCartChanged means the cart was modified between listing and clearing it.
var errCartChanged = errors.New("cart changed during checkout")

type checkoutLine struct {
	item    *domain.CartItem
	product *domain.Product
}

// Checkout turns the user's whole cart into a confirmed order. Every step runs
// in one store transaction; on any failure stock and cart are left as they were.
func (s *CheckoutService) Checkout(ctx context.Context, userID int64) (*domain.Order, error) {
	var order *domain.Order

	err := s.repo.WithinTx(ctx, func(q repository.Queries) error {
		if err := q.LockCart(ctx, userID); err != nil {
			return err
		}

		items, err := q.ListCartItems(ctx, userID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return domain.ErrCartEmpty
		}

		lines := make([]checkoutLine, 0, len(items))
		for _, item := range items {
			product, err := q.GetProduct(ctx, item.ProductID)
			if err != nil {
				return fmt.Errorf("resolve product %d: %w", item.ProductID, err)
			}
			lines = append(lines, checkoutLine{item: item, product: product})
		}

		for _, l := range lines {
			if !l.product.HasStock(l.item.Quantity) {
				return &domain.StockNotEnoughError{
					ProductID: l.product.ID,
					Requested: l.item.Quantity,
					Available: l.product.Stock,
				}
			}
		}

		orderLines := make([]domain.OrderLine, 0, len(lines))
		for _, l := range lines {
			orderLines = append(orderLines, domain.OrderLine{
				ProductID:   l.product.ID,
				ProductName: l.product.Name,
				Quantity:    l.item.Quantity,
				UnitPrice:   l.product.Price,
			})
		}

		sorted := make([]checkoutLine, len(lines))
		copy(sorted, lines)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].product.ID < sorted[j].product.ID
		})

		for _, l := range sorted {
			err := q.DecrementStock(ctx, l.product.ID, l.item.Quantity)
			if errors.Is(err, repository.ErrInsufficientStock) {
				// stock moved between the read and the guarded update
				current, errGet := q.GetProduct(ctx, l.product.ID)
				available := 0
				if errGet == nil {
					available = current.Stock
				}
				return &domain.StockNotEnoughError{
					ProductID: l.product.ID,
					Requested: l.item.Quantity,
					Available: available,
				}
			}
			if err != nil {
				return fmt.Errorf("decrement stock %d: %w", l.product.ID, err)
			}
		}

		cleared, err := q.DeleteAllCartItems(ctx, userID)
		if err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if cleared != len(items) {
			return fmt.Errorf("clear cart: %w: ordered %d items, removed %d", errCartChanged, len(items), cleared)
		}

		order = domain.NewOrder(userID, s.currency, orderLines, s.now())

		payload, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("marshal order: %w", err)
		}

		return q.InsertOutboxEvent(ctx, &domain.OutboxEvent{
			ID:          uuid.New(),
			AggregateID: order.ID.String(),
			EventType:   domain.EventTypeOrderPlaced,
			Payload:     payload,
			CreatedAt:   order.CreatedAt,
		})
	})
	if err != nil {
		if !errors.Is(err, domain.ErrCartEmpty) && !errors.Is(err, domain.ErrStockNotEnough) {
			logger.Warn(ctx, s.logger, "checkout rolled back", zap.Int64("user_id", userID), zap.Error(err))
		}
		return nil, translate("checkout", err)
	}

	logger.Info(ctx, s.logger, "checkout committed",
		zap.Int64("user_id", userID),
		zap.String("order_id", order.ID.String()),
		zap.Float64("total_amount", order.TotalAmount),
	)

	invalidateCart(s.cache, s.logger, userID)
	return order, nil
}
