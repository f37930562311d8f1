package domain

// SendMessageRequest is the body of POST /rooms/:room_id/messages.
type SendMessageRequest struct {
	Body     string `json:"body" binding:"required"`
	SendTime int64  `json:"send_time"`
}

// ListMessagesRequest is the query of GET /rooms/:room_id/messages.
type ListMessagesRequest struct {
	Cursor string `form:"cursor"`
	Limit  *int   `form:"limit"`
}

// JoinRoomResponse is returned by POST /rooms/:room_id/members.
type JoinRoomResponse struct {
	RoomID int64 `json:"room_id"`
}

// PresenceFrame is a server-to-client WebSocket frame.
type PresenceFrame struct {
	Type    string `json:"type"` // "active", "error"
	RoomID  int64  `json:"room_id,omitempty"`
	Message string `json:"message,omitempty"`
}
