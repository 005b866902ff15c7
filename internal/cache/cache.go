package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// CartCache stores rendered carts per user. Every Delete bumps the user's
// generation; a Set carrying an older generation is dropped, so a cart loaded
// before an invalidation can never be written after it.
type CartCache interface {
	Get(ctx context.Context, userID int64) (*domain.Cart, error)
	Generation(ctx context.Context, userID int64) (int64, error)
	// Set returns ErrStaleGeneration when gen is no longer current.
	Set(ctx context.Context, userID, gen int64, cart *domain.Cart) error
	Delete(ctx context.Context, userID int64) error
}

var (
	ErrCacheMiss       = errors.New("cache miss")
	ErrStaleGeneration = errors.New("cart generation changed")
)

// NopCache always misses. Used when no Redis address is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, int64) (*domain.Cart, error) {
	return nil, ErrCacheMiss
}

func (NopCache) Generation(context.Context, int64) (int64, error) {
	return 0, nil
}

func (NopCache) Set(context.Context, int64, int64, *domain.Cart) error {
	return nil
}

func (NopCache) Delete(context.Context, int64) error {
	return nil
}
