package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dalfonso89/currency-converter/internal/models"
)

const redisKeyPrefix = "rates:"

// RedisCache keeps snapshots in redis under rates:<BASE>.
// Keys expire after the retention window, PurgeOlderThan handles tighter cutoffs.
type RedisCache struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisClient connects and pings the redis server
func NewRedisClient(ctx context.Context, address string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: address,
		DB:   0,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", address, err)
	}
	return client, nil
}

// NewRedisCache creates a cache on an existing client
func NewRedisCache(client *redis.Client, retention time.Duration) *RedisCache {
	return &RedisCache{client: client, retention: retention}
}

func (redisCache *RedisCache) Get(ctx context.Context, baseCurrency string) (models.ExchangeRateSnapshot, bool, error) {
	payload, err := redisCache.client.Get(ctx, redisKeyPrefix+normalizeCode(baseCurrency)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ExchangeRateSnapshot{}, false, nil
	}
	if err != nil {
		return models.ExchangeRateSnapshot{}, false, fmt.Errorf("failed to read cached rates for %s: %w", baseCurrency, err)
	}

	var snapshot models.ExchangeRateSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return models.ExchangeRateSnapshot{}, false, fmt.Errorf("failed to decode cached rates for %s: %w", baseCurrency, err)
	}
	return snapshot, true, nil
}

func (redisCache *RedisCache) Put(ctx context.Context, snapshot models.ExchangeRateSnapshot) error {
	snapshot.BaseCurrency = normalizeCode(snapshot.BaseCurrency)
	snapshot.FetchedAt = snapshot.FetchedAt.UTC()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode rates for %s: %w", snapshot.BaseCurrency, err)
	}

	// SET replaces the previous value atomically
	if err := redisCache.client.Set(ctx, redisKeyPrefix+snapshot.BaseCurrency, payload, redisCache.retention).Err(); err != nil {
		return fmt.Errorf("failed to cache rates for %s: %w", snapshot.BaseCurrency, err)
	}
	return nil
}

func (redisCache *RedisCache) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	iterator := redisCache.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iterator.Next(ctx) {
		key := iterator.Val()
		snapshot, found, err := redisCache.Get(ctx, key[len(redisKeyPrefix):])
		if err != nil || !found {
			continue
		}
		if snapshot.FetchedAt.Before(cutoff) {
			deleted, err := redisCache.client.Del(ctx, key).Result()
			if err != nil {
				return purged, fmt.Errorf("failed to purge %s: %w", key, err)
			}
			purged += deleted
		}
	}
	if err := iterator.Err(); err != nil {
		return purged, fmt.Errorf("failed to scan cached rates: %w", err)
	}
	return purged, nil
}

var _ RateCache = (*RedisCache)(nil)
