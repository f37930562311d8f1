package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPageCache stores pages as JSON strings. The client is owned by the
// caller.
type RedisPageCache struct {
	client *redis.Client
	prefix string
}

// NewRedisPageCache creates a page cache on client.
func NewRedisPageCache(client *redis.Client, prefix string) *RedisPageCache {
	if prefix == "" {
		prefix = "chat:history"
	}
	return &RedisPageCache{
		client: client,
		prefix: prefix,
	}
}

func (c *RedisPageCache) BuildKey(roomID int64, cursor string, limit int) string {
	if cursor == "" {
		cursor = "start"
	}
	return fmt.Sprintf("%s:%d:%s:%d", c.prefix, roomID, cursor, limit)
}

func (c *RedisPageCache) Get(ctx context.Context, key string) (*PageCacheResult, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var result PageCacheResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return &result, nil
}

func (c *RedisPageCache) Set(ctx context.Context, key string, result *PageCacheResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	return nil
}
