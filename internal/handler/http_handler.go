package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/somsomparty/chat-core/internal/domain"
	"github.com/somsomparty/chat-core/internal/service"
	"github.com/somsomparty/chat-core/pkg/log"
	"github.com/somsomparty/chat-core/pkg/middleware"
	"github.com/somsomparty/chat-core/pkg/response"
)

// Handler handles HTTP requests for the chat core.
type Handler struct {
	chatService    service.ChatService
	authMiddleware *middleware.AuthMiddleware
	presence       *PresenceHandler
}

// NewHandler creates a new HTTP handler.
func NewHandler(chatService service.ChatService, authMiddleware *middleware.AuthMiddleware, presence *PresenceHandler) *Handler {
	return &Handler{
		chatService:    chatService,
		authMiddleware: authMiddleware,
		presence:       presence,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.authMiddleware.RequireUser())
	{
		rooms := api.Group("/rooms/:room_id")
		{
			rooms.POST("/members", h.JoinRoom)
			rooms.DELETE("/members", h.LeaveRoom)
			rooms.POST("/messages", h.SendMessage)
			rooms.GET("/messages", h.GetMessages)
			rooms.POST("/read", h.MarkRead)
		}

		api.GET("/me/rooms", h.ListMyRooms)

		if h.presence != nil {
			api.GET("/ws/rooms/:room_id/presence", h.presence.Handle)
		}
	}

	r.GET("/health", h.HealthCheck)
}

func roomIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "room_id must be a positive integer")
		return 0, false
	}
	return id, true
}

// JoinRoom adds the caller to a room.
func (h *Handler) JoinRoom(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	joined, err := h.chatService.JoinRoom(c.Request.Context(), middleware.GetUserID(c), roomID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, domain.JoinRoomResponse{RoomID: joined})
}

// LeaveRoom removes the caller from a room.
func (h *Handler) LeaveRoom(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	if err := h.chatService.LeaveRoom(c.Request.Context(), middleware.GetUserID(c), roomID); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SendMessage appends a message from the caller.
func (h *Handler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to bind send message request")
		response.BadRequest(c, err.Error())
		return
	}

	msg, err := h.chatService.SendMessage(ctx, service.SendMessageRequest{
		RoomID:   roomID,
		SenderID: middleware.GetUserID(c),
		Body:     req.Body,
		SendTime: req.SendTime,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.Created(c, msg)
}

// GetMessages returns one page of a room's history, newest first.
func (h *Handler) GetMessages(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	var req domain.ListMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "limit must be a positive integer")
		return
	}
	limit := 0
	if req.Limit != nil {
		if *req.Limit < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = *req.Limit
	}

	page, err := h.chatService.FetchMessages(c.Request.Context(), roomID, req.Cursor, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, page)
}

// ListMyRooms lists the caller's rooms with unread counts.
func (h *Handler) ListMyRooms(c *gin.Context) {
	rooms, err := h.chatService.ListMyRooms(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"rooms": rooms})
}

// MarkRead resets the caller's unread counter for a room.
func (h *Handler) MarkRead(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	if err := h.chatService.MarkRead(c.Request.Context(), roomID, middleware.GetUserID(c)); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
