package domain

import "time"

// ChatRoom is the chat room attached to a festival. Rooms are created by the
// lifecycle handler and never mutated afterwards.
type ChatRoom struct {
	ID        int64     `json:"room_id"`
	Name      string    `json:"room_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership records that a user joined a room.
type Membership struct {
	UserID   int64     `json:"user_id"`
	RoomID   int64     `json:"room_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// RoomSummary is a room a user belongs to, with its live participant count.
type RoomSummary struct {
	RoomID           int64
	RoomName         string
	ParticipantCount int64
}

// RoomListItem is one entry of a user's room list.
type RoomListItem struct {
	RoomID           int64  `json:"room_id"`
	RoomName         string `json:"room_name"`
	ParticipantCount int64  `json:"participant_count"`
	UnreadCount      int64  `json:"unread_count"`
}
