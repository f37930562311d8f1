package domain

import "time"

// ChatRoomModel is the GORM model for the chat_rooms table.
type ChatRoomModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"type:varchar(200);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for ChatRoomModel.
func (ChatRoomModel) TableName() string {
	return "chat_rooms"
}

// ToDomain converts ChatRoomModel to domain ChatRoom.
func (m *ChatRoomModel) ToDomain() *ChatRoom {
	return &ChatRoom{
		ID:        m.ID,
		Name:      m.Name,
		CreatedAt: m.CreatedAt,
	}
}

// MembershipModel is the GORM model for the room_memberships table.
type MembershipModel struct {
	ID        int64     `gorm:"primaryKey"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_membership_user_room,priority:1"`
	RoomID    int64     `gorm:"not null;uniqueIndex:idx_membership_user_room,priority:2;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for MembershipModel.
func (MembershipModel) TableName() string {
	return "room_memberships"
}

// ToDomain converts MembershipModel to domain Membership.
func (m *MembershipModel) ToDomain() *Membership {
	return &Membership{
		UserID:   m.UserID,
		RoomID:   m.RoomID,
		JoinedAt: m.CreatedAt,
	}
}

// UserModel is a read-only view of the externally owned users table.
type UserModel struct {
	ID int64 `gorm:"primaryKey"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}
