package service

import "errors"

// Error kinds returned by ChatService. Underlying storage errors are logged
// and never returned.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotAMember      = errors.New("user is not a member of the room")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidCursor   = errors.New("invalid cursor")
	ErrUnavailable     = errors.New("service temporarily unavailable")
)

// IsRetryable reports whether the caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
