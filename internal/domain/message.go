package domain

// Message is a single chat message. Messages are ordered within a room by
// (SendTime, MessageID); MessageID is a ULID assigned at append time.
type Message struct {
	RoomID    int64  `json:"room_id"`
	SendTime  int64  `json:"send_time"` // unix milliseconds
	MessageID string `json:"message_id"`
	SenderID  int64  `json:"sender_id"`
	Body      string `json:"body"`
}

// Before reports whether m sorts strictly before o.
func (m *Message) Before(o *Message) bool {
	if m.SendTime != o.SendTime {
		return m.SendTime < o.SendTime
	}
	return m.MessageID < o.MessageID
}

// MessagePage is one page of a room's history, newest first.
type MessagePage struct {
	RoomID     int64     `json:"room_id"`
	RoomName   string    `json:"room_name"`
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}
