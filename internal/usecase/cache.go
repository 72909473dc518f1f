package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss reports a result that was never cached or has expired.
var ErrCacheMiss = errors.New("result not cached")

// Cache keeps recently produced results, serialized, by request id.
type Cache interface {
	SetResult(ctx context.Context, requestID string, payload []byte, ttl time.Duration) error
	GetResult(ctx context.Context, requestID string) ([]byte, error)
}

// RedisCache stores results under "verification:<request id>".
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client, prefix: "verification:"}
}

func (c *RedisCache) SetResult(ctx context.Context, requestID string, payload []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+requestID, payload, ttl).Err()
}

func (c *RedisCache) GetResult(ctx context.Context, requestID string) ([]byte, error) {
	payload, err := c.client.Get(ctx, c.prefix+requestID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return payload, err
}
