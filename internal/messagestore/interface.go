// Package messagestore persists chat messages in a per-room, time-ordered log
// and serves them back newest first in cursor-delimited pages.
package messagestore

import (
	"context"
	"errors"
	"math"

	"github.com/somsomparty/chat-core/internal/cursor"
	"github.com/somsomparty/chat-core/internal/domain"
)

var (
	ErrWrite        = errors.New("message store write failed")
	ErrRead         = errors.New("message store read failed")
	ErrInvalidLimit = errors.New("limit must be positive")
)

// Page is a slice of a room's history, newest first. Next is the position
// of the last returned message, or nil when the oldest message is included.
type Page struct {
	Messages []domain.Message
	Next     *cursor.Position
}

// Store is the message log.
type Store interface {
	// Append persists msg, assigning MessageID when it is empty. Once Append
	// returns nil the message is visible to FetchPage on the same room.
	Append(ctx context.Context, msg *domain.Message) error

	// FetchPage returns up to limit messages strictly older than after, or
	// the newest messages when after is nil.
	FetchPage(ctx context.Context, roomID int64, after *cursor.Position, limit int) (*Page, error)

	Close() error
}

// maxPrealloc bounds the row buffer reserved up front. Larger pages grow
// the buffer as rows arrive.
const maxPrealloc = 256

// readLimit is the number of rows to read for a page of limit: one extra
// row tells whether an older page exists.
func readLimit(limit int) int {
	if limit >= math.MaxInt {
		return math.MaxInt
	}
	return limit + 1
}

func newRowBuffer(limit int) []domain.Message {
	return make([]domain.Message, 0, min(limit, maxPrealloc)+1)
}

// buildPage trims rows fetched with limit+1 and derives the next position.
func buildPage(rows []domain.Message, limit int) *Page {
	page := &Page{Messages: rows}
	if len(rows) > limit {
		page.Messages = rows[:limit]
		last := page.Messages[limit-1]
		page.Next = &cursor.Position{
			RoomID:    last.RoomID,
			SendTime:  last.SendTime,
			MessageID: last.MessageID,
		}
	}
	if page.Messages == nil {
		page.Messages = []domain.Message{}
	}
	return page
}
