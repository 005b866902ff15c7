package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type CartService struct {
	repo   repository.Repository
	cache  cache.CartCache
	sfg    singleflight.Group // coalesces concurrent cache misses per user
	logger *zap.Logger
}

func NewCartService(repo repository.Repository, c cache.CartCache, l *zap.Logger) *CartService {
	if c == nil {
		c = cache.NopCache{}
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &CartService{
		repo:   repo,
		cache:  c,
		logger: l,
	}
}

// AddToCart adds quantity units of productID, merging into an existing line.
// The stock check covers the merged quantity; stock itself is not reserved.
func (s *CartService) AddToCart(ctx context.Context, userID, productID int64, quantity int) (*domain.CartItem, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var added *domain.CartItem
	err := s.repo.WithinTx(ctx, func(q repository.Queries) error {
		if err := q.LockCart(ctx, userID); err != nil {
			return err
		}

		product, err := q.GetProduct(ctx, productID)
		if err != nil {
			return err
		}

		existing := 0
		item, err := q.FindCartItem(ctx, userID, productID)
		switch {
		case err == nil:
			existing = item.Quantity
		case !errors.Is(err, repository.ErrCartItemNotFound):
			return err
		}

		if !product.HasStock(existing + quantity) {
			return &domain.StockNotEnoughError{
				ProductID: productID,
				Requested: existing + quantity,
				Available: product.Stock,
			}
		}

		added, err = q.UpsertCartItem(ctx, userID, productID, quantity)
		return err
	})
	if err != nil {
		logger.Debug(ctx, s.logger, "add to cart rejected",
			zap.Int64("user_id", userID), zap.Int64("product_id", productID), zap.Error(err))
		return nil, translate("add to cart", err)
	}

	s.invalidateCache(userID)
	return added, nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) (*domain.CartItem, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var updated *domain.CartItem
	err := s.repo.WithinTx(ctx, func(q repository.Queries) error {
		if err := q.LockCart(ctx, userID); err != nil {
			return err
		}

		item, err := q.GetCartItem(ctx, userID, itemID)
		if err != nil {
			return err
		}

		product, err := q.GetProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}

		if !product.HasStock(quantity) {
			return &domain.StockNotEnoughError{
				ProductID: product.ID,
				Requested: quantity,
				Available: product.Stock,
			}
		}

		updated, err = q.UpdateCartItemQuantity(ctx, userID, itemID, quantity)
		return err
	})
	if err != nil {
		logger.Debug(ctx, s.logger, "update cart item rejected",
			zap.Int64("user_id", userID), zap.Int64("cart_item_id", itemID), zap.Error(err))
		return nil, translate("update cart item", err)
	}

	s.invalidateCache(userID)
	return updated, nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID, itemID int64) error {
	err := s.repo.WithinTx(ctx, func(q repository.Queries) error {
		if err := q.LockCart(ctx, userID); err != nil {
			return err
		}
		return q.DeleteCartItem(ctx, userID, itemID)
	})
	if err != nil {
		return translate("remove cart item", err)
	}

	s.invalidateCache(userID)
	return nil
}

// loadCartTimeout bounds a shared cart load once it is detached from the
// caller that started it.
const loadCartTimeout = 5 * time.Second

func (s *CartService) ListCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart, err := s.cache.Get(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logger.Warn(ctx, s.logger, "cache get failed", zap.Int64("user_id", userID), zap.Error(err))
	}

	gen, err := s.cache.Generation(ctx, userID)
	if err != nil {
		logger.Warn(ctx, s.logger, "cache generation failed", zap.Int64("user_id", userID), zap.Error(err))
		return s.loadCart(ctx, userID)
	}

	// a load started before an invalidation is never joined by later callers
	ch := s.sfg.DoChan(flightKey(userID, gen), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadCartTimeout)
		defer cancel()

		cart, err := s.loadCart(loadCtx, userID)
		if err != nil {
			return nil, err
		}

		err = s.cache.Set(loadCtx, userID, gen, cart)
		switch {
		case errors.Is(err, cache.ErrStaleGeneration):
			logger.Debug(loadCtx, s.logger, "cart changed while loading, not cached", zap.Int64("user_id", userID))
		case err != nil:
			logger.Warn(loadCtx, s.logger, "cache set failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		return cart, nil
	})

	select {
	case <-ctx.Done():
		return nil, translate("list cart", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Cart), nil
	}
}

func (s *CartService) loadCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	lines, err := s.repo.ListCartLines(ctx, userID)
	if err != nil {
		return nil, translate("list cart", err)
	}

	cart := &domain.Cart{UserID: userID, Lines: make([]domain.CartLine, 0, len(lines))}
	for _, l := range lines {
		cart.Lines = append(cart.Lines, *l)
	}
	return cart, nil
}

func flightKey(userID, gen int64) string {
	return strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(gen, 10)
}

func (s *CartService) invalidateCache(userID int64) {
	invalidateCart(s.cache, s.logger, userID)

	// NopCache never bumps its generation, so drop the current flight too
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if gen, err := s.cache.Generation(ctx, userID); err == nil {
		s.sfg.Forget(flightKey(userID, gen))
	}
}

func invalidateCart(c cache.CartCache, l *zap.Logger, userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Delete(ctx, userID); err != nil {
		l.Warn("cache invalidate failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
