package pubsub

import (
	"context"
	"time"

	"github.com/somsomparty/chat-core/pkg/log"
)

// Consume subscribes to pattern and calls handle for every event until ctx is
// done. The subscription is re-established after errors or when the event
// channel closes.
func Consume(ctx context.Context, sub Subscriber, pattern string, retry time.Duration, handle func(context.Context, *Event)) {
	l := log.L().With().Str("pattern", pattern).Logger()
	if retry <= 0 {
		retry = 2 * time.Second
	}

	for ctx.Err() == nil {
		events, err := sub.SubscribePattern(ctx, pattern)
		if err != nil {
			l.Warn().Err(err).Dur("retry_in", retry).Msg("pubsub subscription error, reconnecting")
		} else {
			l.Info().Msg("pubsub subscription active")
			for ev := range events {
				handle(ctx, ev)
			}
			if ctx.Err() != nil {
				break
			}
			l.Warn().Dur("retry_in", retry).Msg("pubsub subscription closed, reconnecting")
		}

		select {
		case <-ctx.Done():
		case <-time.After(retry):
		}
	}

	_ = sub.Unsubscribe(context.Background(), pattern)
}
