package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

type scopeKey struct{}

// roomScope records which ids the context logger already carries.
type roomScope struct {
	roomID int64
	userID int64
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx retrieves the logger from the context.
// If no logger is found, the global logger is returned.
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// WithRoom returns a context whose logger carries the room and user ids.
// Zero ids are omitted, and ids the logger already carries are not added
// again, so nested calls never repeat a key.
func WithRoom(ctx context.Context, roomID, userID int64) context.Context {
	scope, _ := ctx.Value(scopeKey{}).(roomScope)
	lc := Ctx(ctx).With()
	changed := false
	if roomID != 0 && roomID != scope.roomID {
		lc = lc.Int64(FieldRoomID, roomID)
		scope.roomID = roomID
		changed = true
	}
	if userID != 0 && userID != scope.userID {
		lc = lc.Int64(FieldUserID, userID)
		scope.userID = userID
		changed = true
	}
	if !changed {
		return ctx
	}
	return context.WithValue(WithLogger(ctx, lc.Logger()), scopeKey{}, scope)
}

// ForRoom returns the context logger with the room and user ids attached
// unless it already carries them.
func ForRoom(ctx context.Context, roomID, userID int64) zerolog.Logger {
	return Ctx(WithRoom(ctx, roomID, userID))
}
