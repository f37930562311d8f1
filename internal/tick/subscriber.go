// Package tick turns message ticks published by external transports into
// unread fan-outs.
package tick

import (
	"context"
	"time"

	"github.com/somsomparty/chat-core/internal/service"
	"github.com/somsomparty/chat-core/pkg/log"
	"github.com/somsomparty/chat-core/pkg/pubsub"
)

// Subscriber consumes chat:room:*:tick.
type Subscriber struct {
	sub    pubsub.Subscriber
	svc    service.ChatService
	doneCh chan struct{}
}

// NewSubscriber creates a tick subscriber.
func NewSubscriber(sub pubsub.Subscriber, svc service.ChatService) *Subscriber {
	return &Subscriber{
		sub:    sub,
		svc:    svc,
		doneCh: make(chan struct{}),
	}
}

// Done returns a channel that is closed when Run() exits.
func (s *Subscriber) Done() <-chan struct{} { return s.doneCh }

// Run consumes ticks until ctx is done.
func (s *Subscriber) Run(ctx context.Context) {
	defer close(s.doneCh)
	pubsub.Consume(ctx, s.sub, pubsub.PatternRoomTick, 2*time.Second, s.handle)
}

func (s *Subscriber) handle(ctx context.Context, ev *pubsub.Event) {
	if ev.Type != pubsub.EventMessageTick {
		l := log.Ctx(ctx)
		l.Debug().Str("event_type", ev.Type).Msg("ignoring non-tick event")
		return
	}
	s.svc.NotifyMessageTick(ctx, ev.RoomID)
}
