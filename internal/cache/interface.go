// Package cache holds history pages keyed by (room, cursor, limit).
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/somsomparty/chat-core/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// PageCacheResult is a cached history page.
type PageCacheResult struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor string           `json:"next_cursor"`
	HasMore    bool             `json:"has_more"`
}

// PageCache caches history pages.
type PageCache interface {
	Get(ctx context.Context, key string) (*PageCacheResult, error)
	Set(ctx context.Context, key string, result *PageCacheResult, ttl time.Duration) error
	BuildKey(roomID int64, cursor string, limit int) string
}

// Config configures the page cache.
type Config struct {
	Enabled bool          `mapstructure:"enabled"`
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
}
