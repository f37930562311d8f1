package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/somsomparty/chat-core/pkg/log"
)

// RedisPubSub carries chat events over Redis PUBLISH/PSUBSCRIBE. External
// producers may publish bare payloads; see decodeMessage.
type RedisPubSub struct {
	client        *redis.Client
	subscriptions map[string]*redis.PubSub
	mu            sync.RWMutex
}

func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisPubSubFromClient(client), nil
}

// NewRedisPubSubFromClient wraps an existing client. Close closes the client.
func NewRedisPubSubFromClient(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client:        client,
		subscriptions: make(map[string]*redis.PubSub),
	}
}

// Publish publishes an event to the specified channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe subscribes to a single room channel.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return r.subscribe(ctx, channel, r.client.Subscribe)
}

// SubscribePattern subscribes to a wildcard such as chat:room:*:tick.
func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return r.subscribe(ctx, pattern, r.client.PSubscribe)
}

func (r *RedisPubSub) subscribe(ctx context.Context, key string, open func(context.Context, ...string) *redis.PubSub) (<-chan *Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.subscriptions[key]; ok {
		existing.Close()
	}

	pubsub := open(ctx, key)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		delete(r.subscriptions, key)
		return nil, fmt.Errorf("failed to subscribe to %s: %w", key, err)
	}
	r.subscriptions[key] = pubsub

	l := log.Ctx(ctx)
	l.Debug().Str("channel", key).Msg("redis pubsub subscribed")

	eventCh := make(chan *Event, 100)
	go r.processMessages(ctx, pubsub, eventCh)

	return eventCh, nil
}

// Unsubscribe unsubscribes from a channel.
func (r *RedisPubSub) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pubsub, ok := r.subscriptions[channel]; ok {
		if err := pubsub.Close(); err != nil {
			return err
		}
		delete(r.subscriptions, channel)
	}

	return nil
}

// Close closes all subscriptions and the Redis client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pubsub := range r.subscriptions {
		pubsub.Close()
	}
	r.subscriptions = make(map[string]*redis.PubSub)

	return r.client.Close()
}

// processMessages forwards decoded messages until ctx is done or the
// subscription closes.
func (r *RedisPubSub) processMessages(ctx context.Context, pubsub *redis.PubSub, eventCh chan<- *Event) {
	defer close(eventCh)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			event := decodeMessage(msg.Channel, []byte(msg.Payload))

			// Block rather than drop: a lost tick is a lost unread increment.
			select {
			case eventCh <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

// decodeMessage accepts both Event JSON and bare payloads published by
// external producers (e.g. `PUBLISH chat:room:12:tick 1`). Bare payloads
// become an Event whose RoomID is the channel name; a bare JSON payload is
// kept as the event payload.
func decodeMessage(channel string, payload []byte) *Event {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil || event.Type == "" {
		event = Event{RoomID: channel, Timestamp: time.Now()}
		if json.Valid(payload) {
			event.Payload = json.RawMessage(payload)
		}
	}
	if event.RoomID == "" {
		event.RoomID = channel
	}
	if event.Type == "" {
		event.Type = eventTypeForChannel(channel)
	}
	return &event
}

func eventTypeForChannel(channel string) string {
	switch {
	case strings.HasSuffix(channel, ":tick"):
		return EventMessageTick
	case strings.HasSuffix(channel, ":lifecycle"):
		return EventRoomCreated
	default:
		return ""
	}
}
