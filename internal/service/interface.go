package service

import (
	"context"
	"time"

	"github.com/somsomparty/chat-core/internal/domain"
)

// SendMessageRequest is the input of SendMessage. A zero SendTime is
// replaced by the current time.
type SendMessageRequest struct {
	RoomID   int64
	SenderID int64
	Body     string
	SendTime int64 // unix milliseconds
}

// ChatService composes the message store, membership registry and presence
// engine into the public chat operations.
type ChatService interface {
	JoinRoom(ctx context.Context, userID, roomID int64) (int64, error)
	LeaveRoom(ctx context.Context, userID, roomID int64) error
	SendMessage(ctx context.Context, req SendMessageRequest) (*domain.Message, error)
	FetchMessages(ctx context.Context, roomID int64, cursor string, limit int) (*domain.MessagePage, error)
	ListMyRooms(ctx context.Context, userID int64) ([]domain.RoomListItem, error)

	// NotifyMessageTick bumps unread counters for a message delivered by an
	// external transport. roomKey is the raw key received on the tick
	// channel; its digits form the room id. Failures are logged only.
	NotifyMessageTick(ctx context.Context, roomKey string)

	RegisterRoom(ctx context.Context, roomID int64, name string) error
	MarkActive(ctx context.Context, roomID, userID int64) error
	MarkInactive(ctx context.Context, roomID, userID int64) error
	MarkRead(ctx context.Context, roomID, userID int64) error

	// ReconcilePresence rebuilds every room's participant set from the
	// registry and returns the number of rooms processed.
	ReconcilePresence(ctx context.Context) (int, error)
}

// Options tunes the service.
type Options struct {
	StoreTimeout  time.Duration
	FanoutTimeout time.Duration
	CacheTTL      time.Duration
	DefaultLimit  int
	MaxLimit      int
	MaxBodyLength int
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		StoreTimeout:  3 * time.Second,
		FanoutTimeout: 5 * time.Second,
		CacheTTL:      5 * time.Minute,
		DefaultLimit:  20,
		MaxLimit:      50,
		MaxBodyLength: 4000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = d.StoreTimeout
	}
	if o.FanoutTimeout <= 0 {
		o.FanoutTimeout = d.FanoutTimeout
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = d.CacheTTL
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = d.DefaultLimit
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = d.MaxLimit
	}
	if o.DefaultLimit > o.MaxLimit {
		o.DefaultLimit = o.MaxLimit
	}
	if o.MaxBodyLength <= 0 {
		o.MaxBodyLength = d.MaxBodyLength
	}
	return o
}
