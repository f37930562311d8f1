package messagestore

import (
	"context"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gocql/gocql"

	"github.com/somsomparty/chat-core/internal/domain"
)

func rowsAt(roomID int64, sendTimes ...int64) []domain.Message {
	rows := make([]domain.Message, len(sendTimes))
	for i, ts := range sendTimes {
		rows[i] = domain.Message{RoomID: roomID, SendTime: ts, MessageID: "id" + string(rune('a'+i))}
	}
	return rows
}

func TestBuildPage(t *testing.T) {
	page := buildPage(rowsAt(4, 30, 20, 10), 2)
	if len(page.Messages) != 2 || page.Messages[1].SendTime != 20 {
		t.Fatalf("messages = %+v", page.Messages)
	}
	if page.Next == nil || page.Next.RoomID != 4 || page.Next.SendTime != 20 || page.Next.MessageID != "idb" {
		t.Fatalf("next = %+v, want position of the last returned row", page.Next)
	}

	// Exactly limit rows means the extra row was absent.
	page = buildPage(rowsAt(4, 30, 20), 2)
	if len(page.Messages) != 2 || page.Next != nil {
		t.Fatalf("full page without extra row: %d messages, next %+v", len(page.Messages), page.Next)
	}

	page = buildPage(nil, 5)
	if page.Messages == nil || len(page.Messages) != 0 || page.Next != nil {
		t.Fatalf("empty page = %+v", page)
	}
}

func TestReadLimit(t *testing.T) {
	cases := []struct {
		limit, want int
	}{
		{1, 2},
		{50, 51},
		{math.MaxInt - 1, math.MaxInt},
		{math.MaxInt, math.MaxInt},
	}
	for _, c := range cases {
		if got := readLimit(c.limit); got != c.want {
			t.Errorf("readLimit(%d) = %d, want %d", c.limit, got, c.want)
		}
	}
	if got := cap(newRowBuffer(math.MaxInt)); got != maxPrealloc+1 {
		t.Errorf("row buffer cap = %d, want %d", got, maxPrealloc+1)
	}
}

func TestParseConsistency(t *testing.T) {
	cases := map[string]gocql.Consistency{
		"":             gocql.LocalQuorum,
		"LOCAL_QUORUM": gocql.LocalQuorum,
		"local_one":    gocql.LocalOne,
		"QUORUM":       gocql.Quorum,
		"bogus":        gocql.LocalQuorum,
	}
	for in, want := range cases {
		if got := parseConsistency(in); got != want {
			t.Errorf("parseConsistency(%q) = %v, want %v", in, got, want)
		}
	}
}

// TestCassandraPaging runs against a real cluster when
// CHAT_TEST_CASSANDRA_HOSTS is set, e.g. "localhost:9042".
func TestCassandraPaging(t *testing.T) {
	hosts := os.Getenv("CHAT_TEST_CASSANDRA_HOSTS")
	if hosts == "" {
		t.Skip("CHAT_TEST_CASSANDRA_HOSTS not set")
	}
	cfg := CassandraConfig{
		Hosts:          strings.Split(hosts, ","),
		Keyspace:       "chat_test",
		ConnectTimeout: 10 * time.Second,
		Timeout:        10 * time.Second,
	}
	ctx := context.Background()
	if err := MigrateCassandra(ctx, cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s, err := NewCassandraStore(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()

	// A fresh partition per run.
	roomID := time.Now().UnixNano()
	// Two messages share send time 200; the message id breaks the tie.
	appendN(t, s, roomID, 100, 200, 200, 300, 400)

	var seen []domain.Message
	page, err := s.FetchPage(ctx, roomID, nil, 2)
	for {
		if err != nil {
			t.Fatalf("FetchPage: %v", err)
		}
		seen = append(seen, page.Messages...)
		if page.Next == nil {
			break
		}
		page, err = s.FetchPage(ctx, roomID, page.Next, 2)
	}

	if len(seen) != 5 {
		t.Fatalf("walked %d messages, want 5", len(seen))
	}
	ids := map[string]bool{}
	for i, m := range seen {
		if ids[m.MessageID] {
			t.Fatalf("message %s returned twice", m.MessageID)
		}
		ids[m.MessageID] = true
		if i > 0 && !m.Before(&seen[i-1]) {
			t.Fatalf("message %d (%d/%s) not older than its predecessor", i, m.SendTime, m.MessageID)
		}
	}

	page, err = s.FetchPage(ctx, roomID, nil, math.MaxInt)
	if err != nil {
		t.Fatalf("FetchPage(large limit): %v", err)
	}
	if len(page.Messages) != 5 || page.Next != nil {
		t.Fatalf("large limit: %d messages, next %+v", len(page.Messages), page.Next)
	}
}
