// Package cursor encodes the opaque pagination token handed to clients.
//
// A token identifies the last message of a page by its room and sort key
// (send time, message id). Tokens are CBOR maps wrapped in unpadded
// base64url and carry a version tag so the layout can change without
// breaking clients holding older tokens.
package cursor

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/oklog/ulid/v2"
)

// Version is the current token layout.
const Version = 1

// ErrInvalid is returned for tokens that cannot be decoded.
var ErrInvalid = errors.New("invalid cursor")

// Position is the sort key of the last message a client has seen.
type Position struct {
	RoomID    int64
	SendTime  int64
	MessageID string
}

type token struct {
	V  int    `cbor:"v"`
	R  int64  `cbor:"r"`
	T  int64  `cbor:"t"`
	ID string `cbor:"id"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cursor: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		MaxMapPairs: 16,
	}.DecMode()
	if err != nil {
		panic("cursor: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode returns the opaque token for p.
func Encode(p Position) string {
	data, err := encMode.Marshal(token{V: Version, R: p.RoomID, T: p.SendTime, ID: p.MessageID})
	if err != nil {
		// A fixed struct of ints and a string always encodes.
		panic("cursor: encode: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode parses a token produced by Encode.
func Decode(s string) (*Position, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalid)
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var t token
	if err := decMode.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if t.V != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalid, t.V)
	}
	if t.ID == "" {
		return nil, fmt.Errorf("%w: missing message id", ErrInvalid)
	}
	if _, err := ulid.ParseStrict(t.ID); err != nil {
		return nil, fmt.Errorf("%w: message id: %v", ErrInvalid, err)
	}

	return &Position{RoomID: t.R, SendTime: t.T, MessageID: t.ID}, nil
}
