package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewRedisCache(client, 4*time.Minute)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return cache, mr, cleanup
}

func testCart(userID int64) *domain.Cart {
	return &domain.Cart{
		UserID: userID,
		Lines: []domain.CartLine{
			{
				CartItem: domain.CartItem{ID: 1, UserID: userID, ProductID: 1, Quantity: 2},
				Product:  &domain.ProductSnapshot{Name: "Kopi Susu", Price: 2.5, Stock: 50},
			},
			{
				CartItem: domain.CartItem{ID: 2, UserID: userID, ProductID: 2, Quantity: 3},
			},
		},
	}
}

func TestGet_Success(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	var userID int64 = 123

	cartJSON, _ := json.Marshal(testCart(userID))
	mr.Set(cacheKey(userID), string(cartJSON))

	result, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, result.UserID)
	require.Len(t, result.Lines, 2)
	assert.Equal(t, int64(1), result.Lines[0].ProductID)
	require.NotNil(t, result.Lines[0].Product)
	assert.Equal(t, "Kopi Susu", result.Lines[0].Product.Name)
	assert.Nil(t, result.Lines[1].Product)
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	result, err := cache.Get(context.Background(), 404)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	var userID int64 = 123
	jsonCart, err := json.Marshal(testCart(userID))
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey(userID), string(jsonCart[0:10])))

	_, cacheError := cache.Get(context.Background(), userID)
	require.ErrorContains(t, cacheError, "unmarshal cart failed")
}

func TestGet_RedisDown(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	mr.Close()

	_, err := cache.Get(context.Background(), 1)
	require.ErrorContains(t, err, "redis get failed")
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSet_Success(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	var userID int64 = 456
	err := cache.Set(context.Background(), userID, 0, testCart(userID))
	require.NoError(t, err)

	stored, e2 := mr.Get(cacheKey(userID))
	require.NoError(t, e2)
	assert.NotEmpty(t, stored)

	var storedCart domain.Cart
	require.NoError(t, json.Unmarshal([]byte(stored), &storedCart))
	assert.Equal(t, userID, storedCart.UserID)
	assert.Len(t, storedCart.Lines, 2)
}

func TestSet_WithTTL(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	var userID int64 = 789
	err := cache.Set(context.Background(), userID, 0, &domain.Cart{UserID: userID})
	require.NoError(t, err)

	ttl := mr.TTL(cacheKey(userID))
	assert.True(t, ttl >= 4*time.Minute, "TTL should be at least base TTL")
	assert.True(t, ttl <= 5*time.Minute, "TTL should be base + max jitter")
}

func TestNewRedisCache_DefaultTTL(t *testing.T) {
	cache := NewRedisCache(redis.NewClient(&redis.Options{}), 0)
	assert.Equal(t, DefaultTTL, cache.baseTTL)
}

func TestDelete_Success(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	var userID int64 = 999
	cartJSON, _ := json.Marshal(&domain.Cart{UserID: userID})
	mr.Set(cacheKey(userID), string(cartJSON))
	assert.True(t, mr.Exists(cacheKey(userID)))

	require.NoError(t, cache.Delete(context.Background(), userID))
	assert.False(t, mr.Exists(cacheKey(userID)))
}

func TestDelete_NonExistentKey(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	assert.NoError(t, cache.Delete(context.Background(), 31337))
}

func TestCacheKey_Format(t *testing.T) {
	assert.Equal(t, "cart:123", cacheKey(123))
	assert.Equal(t, "cart:123:gen", generationKey(123))
}

func TestDelete_BumpsGeneration(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	gen, err := cache.Generation(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	require.NoError(t, cache.Delete(ctx, 5))
	require.NoError(t, cache.Delete(ctx, 5))

	gen, err = cache.Generation(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)
	assert.True(t, mr.TTL(generationKey(5)) > 0, "generation counter must expire")
}

func TestSet_StaleGenerationIsDropped(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	var userID int64 = 77
	gen, err := cache.Generation(ctx, userID)
	require.NoError(t, err)

	// an invalidation lands between the load and the write
	require.NoError(t, cache.Delete(ctx, userID))

	err = cache.Set(ctx, userID, gen, testCart(userID))
	assert.ErrorIs(t, err, ErrStaleGeneration)
	assert.False(t, mr.Exists(cacheKey(userID)))

	gen, err = cache.Generation(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, userID, gen, testCart(userID)))

	result, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, result.Lines, 2)
}

func TestGeneration_RedisDown(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	mr.Close()

	_, err := cache.Generation(context.Background(), 1)
	require.ErrorContains(t, err, "redis get generation failed")
}

func TestNopCache(t *testing.T) {
	var c CartCache = NopCache{}
	ctx := context.Background()

	gen, err := c.Generation(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, 1, gen, &domain.Cart{UserID: 1}))
	_, err = c.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, c.Delete(ctx, 1))
}
