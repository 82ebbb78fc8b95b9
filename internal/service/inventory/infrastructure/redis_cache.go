// internal/service/inventory/infrastructure/redis_cache.go
package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/redis"
)

// RedisStockCache 为 /check_stock 快路径缓存可用量。
// TTL 很短：这只是一个咨询性读取，过期/不一致由异步预占的再校验兜底。
type RedisStockCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStockCache(client *redis.Client, ttl time.Duration) *RedisStockCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisStockCache{client: client, ttl: ttl}
}

func stockKey(productID string) string {
	return fmt.Sprintf("stock:available:{%s}", productID)
}

func (c *RedisStockCache) GetAvailable(ctx context.Context, productID string) (int, bool, error) {
	val, ok, err := c.client.GetString(ctx, stockKey(productID))
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

func (c *RedisStockCache) SetAvailable(ctx context.Context, productID string, available int) error {
	return c.client.SetString(ctx, stockKey(productID), strconv.Itoa(available), c.ttl)
}

func (c *RedisStockCache) Invalidate(ctx context.Context, productID string) error {
	return c.client.Del(ctx, stockKey(productID))
}
