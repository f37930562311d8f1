package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	pkglog "github.com/somsomparty/chat-core/pkg/log"
	"github.com/somsomparty/chat-core/pkg/pubsub"
)

func registerRoomCmd(configDir *string) *cobra.Command {
	var (
		roomID int64
		name   string
	)
	cmd := &cobra.Command{
		Use:   "register-room",
		Short: "Publish a room_created event for the serving instances to register",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configDir)
			if err != nil {
				return err
			}
			return registerRoom(cmd.Context(), cfg.PubSub, roomID, name)
		},
	}
	cmd.Flags().Int64Var(&roomID, "id", 0, "room id")
	cmd.Flags().StringVar(&name, "name", "", "room name")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func tickCmd(configDir *string) *cobra.Command {
	var roomID int64
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Publish a message tick so every instance bumps the room's unread counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configDir)
			if err != nil {
				return err
			}
			return publishTick(cmd.Context(), cfg.PubSub, roomID)
		},
	}
	cmd.Flags().Int64Var(&roomID, "id", 0, "room id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func registerRoom(ctx context.Context, cfg pubsub.Config, roomID int64, name string) error {
	name = strings.TrimSpace(name)
	if roomID <= 0 || name == "" {
		return fmt.Errorf("register-room: a positive --id and a non-empty --name are required")
	}
	return withPublisher(cfg, func(pub pubsub.Publisher) error {
		if err := pubsub.PublishRoomCreated(ctx, pub, roomID, name); err != nil {
			return err
		}
		l := pkglog.ForRoom(ctx, roomID, 0)
		l.Info().Str("room_name", name).Msg("room_created published")
		return nil
	})
}

func publishTick(ctx context.Context, cfg pubsub.Config, roomID int64) error {
	if roomID <= 0 {
		return fmt.Errorf("tick: a positive --id is required")
	}
	return withPublisher(cfg, func(pub pubsub.Publisher) error {
		if err := pubsub.PublishTick(ctx, pub, roomID); err != nil {
			return err
		}
		l := pkglog.ForRoom(ctx, roomID, 0)
		l.Info().Msg("message tick published")
		return nil
	})
}

// withPublisher opens the configured bus for a single publish. Close flushes
// the Kafka producer before returning.
func withPublisher(cfg pubsub.Config, fn func(pubsub.Publisher) error) error {
	ps, err := pubsub.NewPubSub(cfg)
	if errors.Is(err, pubsub.ErrDisabled) {
		return fmt.Errorf("pubsub driver is %q, nothing to publish to", cfg.Driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create pubsub: %w", err)
	}
	defer ps.Close()
	return fn(ps)
}
