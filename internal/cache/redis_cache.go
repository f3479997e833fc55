package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisReportCache namespaces report keys under a generation counter.
// Invalidation bumps the generation, orphaning old keys until their TTL
// reaps them, so no scan-and-delete pass is needed.
type RedisReportCache struct {
	client     *redis.Client
	generation atomic.Uint64
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) key(key string) string {
	return fmt.Sprintf("reports:%d:%s", c.generation.Load(), key)
}

func (c *RedisReportCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if len(payload) == 0 {
		return nil
	}
	return c.client.Set(ctx, c.key(key), payload, ttl).Err()
}

func (c *RedisReportCache) Invalidate(_ context.Context) error {
	c.generation.Add(1)
	return nil
}
