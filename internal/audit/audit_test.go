package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/somsomparty/chat-core/pkg/log"
)

func TestLogWithDetail(t *testing.T) {
	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), zerolog.New(&buf))

	LogWithDetail(ctx, ActionJoinRoom, 5, 7, "created", "user joined room")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	want := map[string]interface{}{
		log.FieldLogType: log.LogTypeAudit,
		FieldAction:      ActionJoinRoom,
		log.FieldUserID:  float64(5),
		log.FieldRoomID:  float64(7),
		FieldDetail:      "created",
		"message":        "user joined room",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestLogUnderRoomScope(t *testing.T) {
	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), zerolog.New(&buf))
	ctx = log.WithRoom(ctx, 7, 5)

	Log(ctx, ActionLeaveRoom, 5, 7, "user left room")

	line := buf.String()
	for _, key := range []string{log.FieldRoomID, log.FieldUserID} {
		if n := strings.Count(line, `"`+key+`"`); n != 1 {
			t.Errorf("%s appears %d times in %s", key, n, line)
		}
	}
}
