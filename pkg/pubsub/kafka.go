package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/somsomparty/chat-core/pkg/log"
)

// Room channel kinds and the topics that carry them. The room id travels as
// the message key so a room's events stay on one partition, in order.
var kindTopics = map[string]string{
	"tick":      "chat-tick",
	"lifecycle": "chat-lifecycle",
}

// channelToTopicAndKey maps a room channel to its topic and key.
//
//	"chat:room:12:tick"      → "chat-tick", "12"
//	"chat:room:12:lifecycle" → "chat-lifecycle", "12"
func channelToTopicAndKey(channel string) (topic, key string, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[0] != "chat" || parts[1] != "room" || parts[2] == "" {
		return "", "", fmt.Errorf("not a room channel: %s", channel)
	}
	topic, ok := kindTopics[parts[3]]
	if !ok {
		return "", "", fmt.Errorf("unknown room channel kind: %s", channel)
	}
	return topic, parts[2], nil
}

// topicAndKeyToChannel is the inverse of channelToTopicAndKey.
func topicAndKeyToChannel(topic, key string) string {
	for kind, t := range kindTopics {
		if t == topic {
			return "chat:room:" + key + ":" + kind
		}
	}
	return topic
}

// patternToTopic maps a room wildcard pattern such as "chat:room:*:tick".
func patternToTopic(pattern string) (string, error) {
	topic, key, err := channelToTopicAndKey(pattern)
	if err != nil {
		return "", err
	}
	if key != "*" {
		return "", fmt.Errorf("pattern must wildcard the room id: %s", pattern)
	}
	return topic, nil
}

// kafkaSubscription is owned by its poll goroutine, which closes the
// consumer once cancel is called and then closes done.
type kafkaSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *kafkaSubscription) stop() {
	s.cancel()
	<-s.done
}

// KafkaPubSub carries room ticks and lifecycle events over Kafka. Offsets
// are stored only after an event has been handed to the subscriber, so a
// restart redelivers rather than loses unread increments.
type KafkaPubSub struct {
	producer      *kafka.Producer
	subscriptions map[string]*kafkaSubscription // channel or pattern → subscription
	config        KafkaConfig
	mu            sync.Mutex
	doneCh        chan struct{}
}

func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	if cfg.Brokers == "" {
		return nil, fmt.Errorf("kafka pubsub: brokers are required")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "chat-core"
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 4
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "all",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	kps := &KafkaPubSub{
		producer:      p,
		subscriptions: make(map[string]*kafkaSubscription),
		config:        cfg,
		doneCh:        make(chan struct{}),
	}

	go kps.deliveryReportHandler()

	if err := kps.ensureTopics(); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("failed to ensure kafka topics (may already exist)")
	}

	return kps, nil
}

func (k *KafkaPubSub) ensureTopics() error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	specs := make([]kafka.TopicSpecification, 0, len(kindTopics))
	for _, t := range kindTopics {
		specs = append(specs, kafka.TopicSpecification{
			Topic:             t,
			NumPartitions:     k.config.Partitions,
			ReplicationFactor: 1,
		})
	}

	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	l := log.L()
	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			l.Warn().Str("topic", r.Topic).Str("error", r.Error.String()).Msg("failed to create kafka topic")
		}
	}
	return nil
}

func (k *KafkaPubSub) deliveryReportHandler() {
	l := log.L()
	for e := range k.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			l.Warn().
				Err(m.TopicPartition.Error).
				Str(log.FieldRoomKey, string(m.Key)).
				Msg("chat event delivery failed")
		}
	}
	close(k.doneCh)
}

// Publish sends event to the channel's topic keyed by room id.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	topic, key, err := channelToTopicAndKey(channel)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce %s event: %w", topic, err)
	}
	return nil
}

// Subscribe consumes one room's channel through a private consumer group.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	topic, roomKey, err := channelToTopicAndKey(channel)
	if err != nil {
		return nil, err
	}
	return k.subscribe(ctx, channel, topic, roomKey, fmt.Sprintf("%s-room-%s", k.config.GroupID, roomKey))
}

// SubscribePattern consumes every room of a kind. Instances share the
// configured group and split the partitions between them.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	topic, err := patternToTopic(pattern)
	if err != nil {
		return nil, err
	}
	return k.subscribe(ctx, pattern, topic, "", k.config.GroupID)
}

func (k *KafkaPubSub) subscribe(ctx context.Context, subKey, topic, roomKey, groupID string) (<-chan *Event, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if existing, ok := k.subscriptions[subKey]; ok {
		existing.stop()
		delete(k.subscriptions, subKey)
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":        k.config.Brokers,
		"group.id":                 groupID,
		"auto.offset.reset":        "latest",
		"enable.auto.commit":       true,
		"enable.auto.offset.store": false,
		"auto.commit.interval.ms":  2000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{cancel: cancel, done: make(chan struct{})}
	k.subscriptions[subKey] = sub

	eventCh := make(chan *Event, 100)
	go k.poll(subCtx, c, topic, roomKey, eventCh, sub.done)

	return eventCh, nil
}

// poll forwards records to eventCh until ctx is done. Delivery blocks on a
// slow subscriber instead of dropping, and a record's offset is stored only
// once it has been delivered or filtered out.
func (k *KafkaPubSub) poll(ctx context.Context, c *kafka.Consumer, topic, roomKey string, eventCh chan<- *Event, done chan<- struct{}) {
	l := log.L().With().Str("topic", topic).Logger()
	defer close(done)
	defer close(eventCh)
	defer func() {
		if err := c.Close(); err != nil {
			l.Warn().Err(err).Msg("failed to close kafka consumer")
		}
	}()

	for ctx.Err() == nil {
		switch e := c.Poll(500).(type) {
		case nil:
		case *kafka.Message:
			key := string(e.Key)
			if roomKey == "" || key == roomKey {
				select {
				case eventCh <- decodeMessage(topicAndKeyToChannel(topic, key), e.Value):
				case <-ctx.Done():
					return
				}
			}
			if _, err := c.StoreMessage(e); err != nil {
				l.Warn().Err(err).Str(log.FieldRoomKey, key).Msg("failed to store kafka offset")
			}
		case kafka.Error:
			l.Error().Err(e).Int("code", int(e.Code())).Bool("fatal", e.IsFatal()).Msg("kafka pubsub error")
			if e.IsFatal() {
				return
			}
		}
	}
}

func (k *KafkaPubSub) Unsubscribe(ctx context.Context, channel string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if sub, ok := k.subscriptions[channel]; ok {
		sub.stop()
		delete(k.subscriptions, channel)
	}
	return nil
}

// Close stops every subscription, then flushes and closes the producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, sub := range k.subscriptions {
		sub.stop()
		delete(k.subscriptions, key)
	}

	if remaining := k.producer.Flush(5000); remaining > 0 {
		l := log.L()
		l.Warn().Int("pending", remaining).Msg("kafka producer closed with undelivered chat events")
	}
	k.producer.Close()
	<-k.doneCh
	return nil
}
