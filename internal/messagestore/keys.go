package messagestore

import (
	"encoding/binary"
	"errors"

	"github.com/oklog/ulid/v2"
)

// Key layout:
//
//	m/{room:8}/{send_time:8}/{message_id:16}
//
// Integers are big-endian with the sign bit flipped so byte order matches
// numeric order, including negative timestamps. The message id is the raw
// 16-byte ULID, whose byte order matches its string order.
const (
	messagePrefix   = "m/"
	roomPrefixLen   = len(messagePrefix) + 8 + 1
	messageKeyLen   = roomPrefixLen + 8 + 1 + 16
	sendTimeOffset  = roomPrefixLen
	messageIDOffset = roomPrefixLen + 8 + 1
)

var errBadKey = errors.New("malformed message key")

func putOrderedInt64(b []byte, v int64) {
	binary.BigEndian.PutUint64(b, uint64(v)^(1<<63))
}

func orderedInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63))
}

// roomPrefix returns m/{room}/.
func roomPrefix(roomID int64) []byte {
	k := make([]byte, roomPrefixLen)
	copy(k, messagePrefix)
	putOrderedInt64(k[len(messagePrefix):], roomID)
	k[roomPrefixLen-1] = '/'
	return k
}

// messageKey returns the full key for a message.
func messageKey(roomID, sendTime int64, id ulid.ULID) []byte {
	k := make([]byte, messageKeyLen)
	copy(k, roomPrefix(roomID))
	putOrderedInt64(k[sendTimeOffset:], sendTime)
	k[messageIDOffset-1] = '/'
	copy(k[messageIDOffset:], id[:])
	return k
}

// parseMessageKey extracts the sort key from a message key.
func parseMessageKey(k []byte) (sendTime int64, id ulid.ULID, err error) {
	if len(k) != messageKeyLen {
		return 0, id, errBadKey
	}
	sendTime = orderedInt64(k[sendTimeOffset:])
	copy(id[:], k[messageIDOffset:])
	return sendTime, id, nil
}

// prefixEnd returns the smallest key greater than every key with prefix p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
