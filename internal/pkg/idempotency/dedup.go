// internal/pkg/idempotency/dedup.go
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/redis"
)

// Deduplicator 为 at-least-once 的消息传输提供消费侧去重。
// 以消息 ID 为键，在一个有限的时间窗口内记录"已处理"标记；
// 窗口之外的重复消息由各引擎操作自身的幂等性兜底。
type Deduplicator interface {
	// Seen 原子地检查并登记一个消息 ID。
	// 返回 true 表示该消息在窗口内已被处理过，调用方应直接跳过。
	Seen(ctx context.Context, consumerGroup, messageID string) (bool, error)
}

// RedisDeduplicator 基于 Redis SETNX + TTL 实现去重窗口
type RedisDeduplicator struct {
	client *redis.Client
	window time.Duration
}

func NewRedisDeduplicator(client *redis.Client, window time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, window: window}
}

func (d *RedisDeduplicator) Seen(ctx context.Context, consumerGroup, messageID string) (bool, error) {
	if messageID == "" {
		// 没有消息 ID 的消息（例如外部系统直接写入的）无法去重，放行
		return false, nil
	}
	key := fmt.Sprintf("dedup:{%s}:%s", consumerGroup, messageID)
	ok, err := d.client.SetNX(ctx, key, 1, d.window)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// MemoryDeduplicator 是进程内实现，用于测试和单机模式
type MemoryDeduplicator struct {
	mu   sync.Mutex
	seen map[string]time.Time

	window time.Duration
}

func NewMemoryDeduplicator(window time.Duration) *MemoryDeduplicator {
	return &MemoryDeduplicator{seen: make(map[string]time.Time), window: window}
}

func (d *MemoryDeduplicator) Seen(_ context.Context, consumerGroup, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	key := consumerGroup + ":" + messageID
	now := time.Now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.window {
		return true, nil
	}
	d.seen[key] = now
	return false, nil
}
