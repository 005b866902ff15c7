package service

import (
	"context"
	"sync"
	"testing"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockCache struct {
	m       sync.RWMutex
	carts   map[int64]*domain.Cart
	gens    map[int64]int64
	err     error
	deletes int
	// beforeSet runs before Set takes the lock, letting a test hold a load
	// between reading the store and writing the cache.
	beforeSet func()
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[int64]*domain.Cart), gens: make(map[int64]int64)}
}

func (m *mockCache) Get(_ context.Context, userID int64) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	cart, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart, nil
}

func (m *mockCache) Generation(_ context.Context, userID int64) (int64, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.gens[userID], m.err
}

func (m *mockCache) Set(_ context.Context, userID, gen int64, cart *domain.Cart) error {
	if m.beforeSet != nil {
		m.beforeSet()
	}
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.gens[userID] != gen {
		return cache.ErrStaleGeneration
	}
	m.carts[userID] = cart
	return nil
}

func (m *mockCache) Delete(_ context.Context, userID int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.carts, userID)
	m.gens[userID]++
	m.deletes++
	return m.err
}

func (m *mockCache) getCart(userID int64) *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.carts[userID]
}

func (m *mockCache) deleteCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.deletes
}

func seedProduct(t *testing.T, repo repository.Repository, name string, price float64, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{Name: name, Price: price, Stock: stock}
	require.NoError(t, repo.CreateProduct(context.Background(), p))
	return p
}

func stockOf(t *testing.T, repo repository.Repository, id int64) int {
	t.Helper()
	p, err := repo.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func newServices(repo repository.Repository, c cache.CartCache) (*CartService, *CheckoutService) {
	return NewCartService(repo, c, zap.NewNop()), NewCheckoutService(repo, c, zap.NewNop(), "")
}

func setupSQLite(t *testing.T) repository.Repository {
	t.Helper()
	repo, err := repository.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations("../repository/migrations/sqlite"))
	t.Cleanup(func() { repo.Close() })
	return repo
}
