package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is used when NewRedisCache gets a non-positive TTL.
const DefaultTTL = time.Minute

// generationTTL outlives any cart entry, so an expired counter can only
// reset while no Set for that user is pending.
const generationTTL = 24 * time.Hour

// KEYS[1] cart, KEYS[2] generation; ARGV[1] expected generation, ARGV[2]
// payload, ARGV[3] ttl in ms.
var setIfCurrent = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// KEYS[1] cart, KEYS[2] generation; ARGV[1] generation ttl in ms.
var dropAndBump = redis.NewScript(`
redis.call('DEL', KEYS[1])
local gen = redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
return gen
`)

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = DefaultTTL
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, userID int64) (*domain.Cart, error) {
	key := cacheKey(userID)

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err2 := json.Unmarshal(data, &cart); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}

	return &cart, nil
}

func (r RedisCache) Generation(ctx context.Context, userID int64) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

func (r RedisCache) Set(ctx context.Context, userID, gen int64, cart *domain.Cart) error {
	jsonCart, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	// jitter of up to baseTTL/4
	jitter := time.Duration(rand.Int63n(int64(r.baseTTL)/4 + 1))
	ttl := r.baseTTL + jitter

	stored, err := setIfCurrent.Run(ctx, r.client,
		[]string{cacheKey(userID), generationKey(userID)},
		strconv.FormatInt(gen, 10), jsonCart, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if stored == 0 {
		return ErrStaleGeneration
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, userID int64) error {
	err := dropAndBump.Run(ctx, r.client,
		[]string{cacheKey(userID), generationKey(userID)},
		generationTTL.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

func generationKey(userID int64) string {
	return fmt.Sprintf("cart:%d:gen", userID)
}
