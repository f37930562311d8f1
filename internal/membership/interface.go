// Package membership is the system of record for chat rooms and which users
// belong to them.
package membership

import (
	"context"
	"errors"

	"github.com/somsomparty/chat-core/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrNotAMember   = errors.New("user is not a member of the room")
	ErrStore        = errors.New("membership store unavailable")
)

// Registry stores rooms and memberships.
type Registry interface {
	// CreateRoom registers a room. Registering an existing id returns the
	// stored room unchanged.
	CreateRoom(ctx context.Context, roomID int64, name string) (*domain.ChatRoom, error)
	GetRoom(ctx context.Context, roomID int64) (*domain.ChatRoom, error)

	// Join adds the membership. created is false when it already existed.
	Join(ctx context.Context, userID, roomID int64) (m *domain.Membership, created bool, err error)
	Leave(ctx context.Context, userID, roomID int64) error
	IsMember(ctx context.Context, userID, roomID int64) (bool, error)

	// ListRoomsForUser returns the user's rooms with live participant counts.
	ListRoomsForUser(ctx context.Context, userID int64) ([]domain.RoomSummary, error)
	ListMembers(ctx context.Context, roomID int64) ([]int64, error)
	ListRoomIDs(ctx context.Context) ([]int64, error)
}

// UserDirectory answers whether a user account exists.
type UserDirectory interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}
