package pubsub

import (
	"context"
	"fmt"
	"strconv"
)

// Channel naming conventions for the chat core.
//
//	chat:room:{room_id}:tick       - a message landed in the room; bump unread counters
//	chat:room:{room_id}:lifecycle  - room lifecycle events (room_created)
const (
	ChannelRoomTick      = "chat:room:%d:tick"
	ChannelRoomLifecycle = "chat:room:%d:lifecycle"

	PatternRoomTick      = "chat:room:*:tick"
	PatternRoomLifecycle = "chat:room:*:lifecycle"
)

// Event types.
const (
	EventMessageTick = "message_tick"
	EventRoomCreated = "room_created"
)

// RoomTickChannel returns the tick channel for a room.
func RoomTickChannel(roomID int64) string {
	return fmt.Sprintf(ChannelRoomTick, roomID)
}

// RoomLifecycleChannel returns the lifecycle channel for a room.
func RoomLifecycleChannel(roomID int64) string {
	return fmt.Sprintf(ChannelRoomLifecycle, roomID)
}

// RoomCreatedPayload is published by the room lifecycle provider once the
// parent entity (festival) and its chat room exist.
type RoomCreatedPayload struct {
	RoomID   int64  `json:"room_id"`
	RoomName string `json:"room_name"`
}

// PublishTick announces that a message landed in roomID. Transports that
// deliver messages outside SendMessage use it to drive unread counters.
func PublishTick(ctx context.Context, pub Publisher, roomID int64) error {
	ev, err := NewEvent(EventMessageTick, strconv.FormatInt(roomID, 10), nil)
	if err != nil {
		return err
	}
	return pub.Publish(ctx, RoomTickChannel(roomID), ev)
}

// PublishRoomCreated announces a new chat room.
func PublishRoomCreated(ctx context.Context, pub Publisher, roomID int64, name string) error {
	ev, err := NewEvent(EventRoomCreated, strconv.FormatInt(roomID, 10), RoomCreatedPayload{RoomID: roomID, RoomName: name})
	if err != nil {
		return err
	}
	return pub.Publish(ctx, RoomLifecycleChannel(roomID), ev)
}
