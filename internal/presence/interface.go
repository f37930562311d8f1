// Package presence tracks which users are participants of a room, which of
// them are currently active, and how many messages each inactive
// participant has not seen yet.
package presence

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStore          = errors.New("presence store unavailable")
	ErrNotParticipant = errors.New("user is not a participant of the room")
)

// FanoutResult summarises one unread fan-out.
type FanoutResult struct {
	Recipients  int // participants that were not active
	Incremented int
	Failed      int
}

// Engine is the presence and unread counter store.
type Engine interface {
	AddParticipant(ctx context.Context, roomID, userID int64) error
	// RemoveParticipant also clears the user's active entry. The unread
	// counter is kept; only ResetUnread clears it.
	RemoveParticipant(ctx context.Context, roomID, userID int64) error

	// MarkActive records a presence signal. Only participants can be active.
	MarkActive(ctx context.Context, roomID, userID int64) error
	MarkInactive(ctx context.Context, roomID, userID int64) error

	// OnMessageAppended increments the unread counter of every participant
	// that is not active by exactly one. Per-user failures are counted, not
	// returned.
	OnMessageAppended(ctx context.Context, roomID int64) FanoutResult

	UnreadCount(ctx context.Context, roomID, userID int64) (int64, error)
	// UnreadCounts returns the user's counters for each room; rooms with no
	// counter map to zero.
	UnreadCounts(ctx context.Context, userID int64, roomIDs []int64) (map[int64]int64, error)
	ResetUnread(ctx context.Context, roomID, userID int64) error

	Participants(ctx context.Context, roomID int64) ([]int64, error)
	// ReplaceParticipants overwrites a room's participant set, dropping the
	// active entries of users no longer in it. Unread counters are kept.
	ReplaceParticipants(ctx context.Context, roomID int64, userIDs []int64) error

	Close() error
}

// Config configures the presence engine.
type Config struct {
	Driver            string        `mapstructure:"driver"` // "redis", "memory"
	KeyPrefix         string        `mapstructure:"key_prefix"`
	ActiveTTL         time.Duration `mapstructure:"active_ttl"`
	FanoutConcurrency int           `mapstructure:"fanout_concurrency"`
	FanoutTimeout     time.Duration `mapstructure:"fanout_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Driver:            "redis",
		KeyPrefix:         "chat",
		ActiveTTL:         90 * time.Second,
		FanoutConcurrency: 16,
		FanoutTimeout:     5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.KeyPrefix == "" {
		c.KeyPrefix = d.KeyPrefix
	}
	if c.ActiveTTL <= 0 {
		c.ActiveTTL = d.ActiveTTL
	}
	if c.FanoutConcurrency <= 0 {
		c.FanoutConcurrency = d.FanoutConcurrency
	}
	if c.FanoutTimeout <= 0 {
		c.FanoutTimeout = d.FanoutTimeout
	}
	return c
}
