package messagestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
	"github.com/oklog/ulid/v2"

	"github.com/somsomparty/chat-core/internal/cursor"
	"github.com/somsomparty/chat-core/internal/domain"
	"github.com/somsomparty/chat-core/pkg/log"
)

// storedMessage is the value half of a message record; the room and sort key
// live in the key.
type storedMessage struct {
	SenderID int64  `cbor:"1,keyasint"`
	Body     string `cbor:"2,keyasint"`
}

// PebbleStore is an embedded single-node message log.
type PebbleStore struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
}

// NewPebbleStore opens or creates the store under cfg.DataDir.
func NewPebbleStore(cfg PebbleConfig) (*PebbleStore, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("pebble: data_dir is required")
	}

	db, err := pebble.Open(cfg.DataDir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble: %w", err)
	}

	writeOpts := pebble.Sync
	if cfg.NoSync {
		writeOpts = pebble.NoSync
	}

	return &PebbleStore{db: db, writeOpts: writeOpts}, nil
}

func (s *PebbleStore) Append(ctx context.Context, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	var id ulid.ULID
	if msg.MessageID == "" {
		id = ulid.Make()
	} else {
		parsed, err := ulid.ParseStrict(msg.MessageID)
		if err != nil {
			return fmt.Errorf("%w: message id: %v", ErrWrite, err)
		}
		id = parsed
	}

	value, err := cbor.Marshal(storedMessage{SenderID: msg.SenderID, Body: msg.Body})
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrWrite, err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(messageKey(msg.RoomID, msg.SendTime, id), value, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := b.Commit(s.writeOpts); err != nil {
		l := log.ForRoom(ctx, msg.RoomID, 0)
		l.Error().Err(err).Msg("pebble commit failed")
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	msg.MessageID = id.String()
	return nil
}

func (s *PebbleStore) FetchPage(ctx context.Context, roomID int64, after *cursor.Position, limit int) (*Page, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}

	prefix := roomPrefix(roomID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	defer iter.Close()

	var ok bool
	if after == nil {
		ok = iter.Last()
	} else {
		id, err := ulid.ParseStrict(after.MessageID)
		if err != nil {
			return nil, fmt.Errorf("%w: cursor message id: %v", ErrRead, err)
		}
		ok = iter.SeekLT(messageKey(roomID, after.SendTime, id))
	}

	want := readLimit(limit)
	rows := newRowBuffer(limit)
	for ; ok && len(rows) < want; ok = iter.Prev() {
		sendTime, id, err := parseMessageKey(iter.Key())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRead, err)
		}

		var v storedMessage
		if err := cbor.Unmarshal(iter.Value(), &v); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", ErrRead, err)
		}

		rows = append(rows, domain.Message{
			RoomID:    roomID,
			SendTime:  sendTime,
			MessageID: id.String(),
			SenderID:  v.SenderID,
			Body:      v.Body,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}

	return buildPage(rows, limit), nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
