package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/somsomparty/chat-core/internal/domain"
	"github.com/somsomparty/chat-core/internal/service"
	"github.com/somsomparty/chat-core/pkg/log"
	"github.com/somsomparty/chat-core/pkg/middleware"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

// PresenceHandler keeps a user active in a room while a WebSocket is open.
// Each pong or "heartbeat" text frame refreshes the presence signal; closing
// the socket marks the user inactive.
type PresenceHandler struct {
	chatService  service.ChatService
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// NewPresenceHandler creates a presence WebSocket handler. pingInterval
// should be well below the presence active TTL.
func NewPresenceHandler(chatService service.ChatService, pingInterval time.Duration) *PresenceHandler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &PresenceHandler{
		chatService:  chatService,
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

// Handle upgrades the request after the first presence signal succeeds.
func (h *PresenceHandler) Handle(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	ctx := log.WithRoom(c.Request.Context(), roomID, userID)
	if err := h.chatService.MarkActive(ctx, roomID, userID); err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("websocket upgrade failed")
		_ = h.chatService.MarkInactive(context.WithoutCancel(ctx), roomID, userID)
		return
	}

	connLogger := log.Ctx(ctx).With().Str("conn_id", uuid.New().String()).Logger()
	ctx = log.WithLogger(context.WithoutCancel(ctx), connLogger)
	connLogger.Debug().Msg("presence connection opened")

	h.serve(ctx, conn, roomID, userID)
}

func (h *PresenceHandler) serve(ctx context.Context, conn *websocket.Conn, roomID, userID int64) {
	done := make(chan struct{})
	defer func() {
		close(done)
		_ = conn.Close()
		if err := h.chatService.MarkInactive(ctx, roomID, userID); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("failed to mark user inactive")
		}
		l := log.Ctx(ctx)
		l.Debug().Msg("presence connection closed")
	}()

	pongWait := 2 * h.pingInterval
	refresh := func() error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return h.chatService.MarkActive(ctx, roomID, userID)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		if err := refresh(); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("presence refresh failed")
		}
		return nil
	})

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(domain.PresenceFrame{Type: "active", RoomID: roomID}); err != nil {
		return
	}

	go h.pingLoop(conn, done)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage || strings.TrimSpace(string(data)) != "heartbeat" {
			continue
		}
		if err := refresh(); err != nil {
			// The user left the room while connected.
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "not a member of the room"),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (h *PresenceHandler) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
