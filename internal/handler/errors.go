package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/somsomparty/chat-core/internal/service"
	"github.com/somsomparty/chat-core/pkg/response"
)

const retryAfter = time.Second

// writeError maps a service error kind to a response envelope.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, "USER_NOT_FOUND", "user not found")
	case errors.Is(err, service.ErrRoomNotFound):
		response.NotFound(c, "ROOM_NOT_FOUND", "room not found")
	case errors.Is(err, service.ErrNotAMember):
		response.NotFound(c, "NOT_A_MEMBER", "user is not a member of the room")
	case errors.Is(err, service.ErrInvalidCursor):
		response.Error(c, 400, "INVALID_CURSOR", "invalid cursor")
	case errors.Is(err, service.ErrInvalidArgument):
		response.BadRequest(c, err.Error())
	case service.IsRetryable(err):
		response.Retryable(c, "temporarily unavailable, retry later", retryAfter)
	default:
		response.InternalError(c, "internal error")
	}
}
