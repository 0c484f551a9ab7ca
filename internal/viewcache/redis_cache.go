package viewcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKVClient はredisCacheが使用するRedisコマンドの部分集合。
type redisKVClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// redisCache はRedisを使用するCache実装。複数プロセスで無効化を共有できる。
type redisCache struct {
	client  redisKVClient
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisCache はRedisを使用するCacheを生成する。clientがnilの場合はnilを返す。
func NewRedisCache(client *redis.Client, ttl time.Duration) Cache {
	if client == nil {
		return nil
	}
	return newRedisCache(client, ttl)
}

func newRedisCache(client redisKVClient, ttl time.Duration) *redisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisCache{
		client:  client,
		ttl:     ttl,
		timeout: 500 * time.Millisecond,
	}
}

func (c *redisCache) Get(ctx context.Context, ownerID, route string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.client.Get(ctx, cacheKey(ownerID, route)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read view cache: %w", err)
	}
	return body, true, nil
}

func (c *redisCache) Set(ctx context.Context, ownerID, route string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Set(ctx, cacheKey(ownerID, route), body, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write view cache: %w", err)
	}
	return nil
}

func (c *redisCache) Invalidate(ctx context.Context, ownerID string, routes ...string) error {
	if len(routes) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	keys := make([]string, 0, len(routes))
	for _, route := range routes {
		keys = append(keys, cacheKey(ownerID, route))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate view cache: %w", err)
	}
	return nil
}
