package audit

import (
	"context"

	"github.com/somsomparty/chat-core/pkg/log"
)

// Audit actions for the chat core.
const (
	ActionRegisterRoom = "room.register"
	ActionJoinRoom     = "room.join"
	ActionLeaveRoom    = "room.leave"
	ActionMarkRead     = "room.mark_read"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger. Zero ids
// are omitted.
func Log(ctx context.Context, action string, userID, roomID int64, msg string) {
	l := log.ForRoom(ctx, roomID, userID)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, userID, roomID int64, detail string, msg string) {
	l := log.ForRoom(ctx, roomID, userID)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(FieldDetail, detail).
		Msg(msg)
}
