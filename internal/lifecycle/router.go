// Package lifecycle reacts to room lifecycle events published by the
// festival service.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/somsomparty/chat-core/internal/service"
	"github.com/somsomparty/chat-core/pkg/log"
	"github.com/somsomparty/chat-core/pkg/pubsub"
)

// ErrNoHandler is returned by Dispatch for unregistered event types.
var ErrNoHandler = errors.New("no handler registered for event type")

// HandlerFunc handles one lifecycle event.
type HandlerFunc func(ctx context.Context, ev *pubsub.Event) error

// Router dispatches lifecycle events to the handlers registered for their
// type.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for eventType, replacing any earlier handler.
func (r *Router) Handle(eventType string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = fn
}

// Dispatch runs the handler registered for ev.Type.
func (r *Router) Dispatch(ctx context.Context, ev *pubsub.Event) error {
	r.mu.RLock()
	fn, ok := r.handlers[ev.Type]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoHandler, ev.Type)
	}
	return fn(ctx, ev)
}

// Run consumes lifecycle events until ctx is done.
func (r *Router) Run(ctx context.Context, sub pubsub.Subscriber) {
	pubsub.Consume(ctx, sub, pubsub.PatternRoomLifecycle, 2*time.Second, func(ctx context.Context, ev *pubsub.Event) {
		if err := r.Dispatch(ctx, ev); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str("event_type", ev.Type).Str(log.FieldRoomKey, ev.RoomID).Msg("lifecycle event not handled")
		}
	})
}

// RoomCreated registers the chat room announced by a room_created event.
func RoomCreated(svc service.ChatService) HandlerFunc {
	return func(ctx context.Context, ev *pubsub.Event) error {
		var p pubsub.RoomCreatedPayload
		if err := ev.UnmarshalPayload(&p); err != nil {
			return fmt.Errorf("invalid room_created payload: %w", err)
		}
		return svc.RegisterRoom(ctx, p.RoomID, p.RoomName)
	}
}
