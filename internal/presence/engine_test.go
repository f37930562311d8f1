package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testConfig() Config {
	return Config{ActiveTTL: time.Minute, FanoutConcurrency: 4}
}

// engines returns every driver wired to a shared fake clock.
func engines(t *testing.T) map[string]func() (Engine, *testClock) {
	return map[string]func() (Engine, *testClock){
		"memory": func() (Engine, *testClock) {
			clock := &testClock{t: time.Unix(1700000000, 0)}
			e := NewMemoryEngine(testConfig())
			e.now = clock.now
			return e, clock
		},
		"redis": func() (Engine, *testClock) {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			clock := &testClock{t: time.Unix(1700000000, 0)}
			e := NewRedisEngine(client, testConfig())
			e.now = clock.now
			return e, clock
		},
	}
}

func mustUnread(t *testing.T, e Engine, roomID, userID, want int64) {
	t.Helper()
	got, err := e.UnreadCount(context.Background(), roomID, userID)
	if err != nil {
		t.Fatalf("UnreadCount(%d, %d): %v", roomID, userID, err)
	}
	if got != want {
		t.Fatalf("UnreadCount(%d, %d) = %d, want %d", roomID, userID, got, want)
	}
}

func TestFanoutSkipsActive(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e, _ := open()
			const room, a, b, c = 7, 1, 2, 3
			for _, u := range []int64{a, b, c} {
				if err := e.AddParticipant(ctx, room, u); err != nil {
					t.Fatalf("AddParticipant: %v", err)
				}
			}
			if err := e.MarkActive(ctx, room, a); err != nil {
				t.Fatalf("MarkActive: %v", err)
			}

			res := e.OnMessageAppended(ctx, room)
			if res != (FanoutResult{Recipients: 2, Incremented: 2}) {
				t.Fatalf("fan-out = %+v", res)
			}
			mustUnread(t, e, room, a, 0)
			mustUnread(t, e, room, b, 1)
			mustUnread(t, e, room, c, 1)

			e.OnMessageAppended(ctx, room)
			mustUnread(t, e, room, b, 2)
			mustUnread(t, e, room, a, 0)
		})
	}
}

func TestFanoutEmptyRoom(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			e, _ := open()
			if res := e.OnMessageAppended(context.Background(), 404); res != (FanoutResult{}) {
				t.Fatalf("fan-out on empty room = %+v", res)
			}
		})
	}
}

func TestActiveExpires(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e, clock := open()
			_ = e.AddParticipant(ctx, 1, 10)
			if err := e.MarkActive(ctx, 1, 10); err != nil {
				t.Fatalf("MarkActive: %v", err)
			}

			clock.advance(30 * time.Second)
			e.OnMessageAppended(ctx, 1)
			mustUnread(t, e, 1, 10, 0)

			clock.advance(31 * time.Second)
			e.OnMessageAppended(ctx, 1)
			mustUnread(t, e, 1, 10, 1)
		})
	}
}

func TestMarkInactive(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e, _ := open()
			_ = e.AddParticipant(ctx, 1, 10)
			_ = e.MarkActive(ctx, 1, 10)
			if err := e.MarkInactive(ctx, 1, 10); err != nil {
				t.Fatalf("MarkInactive: %v", err)
			}
			e.OnMessageAppended(ctx, 1)
			mustUnread(t, e, 1, 10, 1)
		})
	}
}

func TestMarkActiveRequiresParticipant(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			e, _ := open()
			if err := e.MarkActive(context.Background(), 1, 10); !errors.Is(err, ErrNotParticipant) {
				t.Fatalf("err = %v, want ErrNotParticipant", err)
			}
		})
	}
}

func TestRemoveParticipantKeepsUnread(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e, _ := open()
			_ = e.AddParticipant(ctx, 1, 10)
			_ = e.AddParticipant(ctx, 1, 11)
			e.OnMessageAppended(ctx, 1)
			_ = e.MarkActive(ctx, 1, 10)

			if err := e.RemoveParticipant(ctx, 1, 10); err != nil {
				t.Fatalf("RemoveParticipant: %v", err)
			}
			// Only ResetUnread clears a counter.
			mustUnread(t, e, 1, 10, 1)

			ids, err := e.Participants(ctx, 1)
			if err != nil {
				t.Fatalf("Participants: %v", err)
			}
			if len(ids) != 1 || ids[0] != 11 {
				t.Fatalf("participants = %v, want [11]", ids)
			}
			if err := e.MarkActive(ctx, 1, 10); !errors.Is(err, ErrNotParticipant) {
				t.Fatalf("MarkActive after leave: err = %v, want ErrNotParticipant", err)
			}

			// Re-adding starts inactive and keeps counting from the old value.
			_ = e.AddParticipant(ctx, 1, 10)
			e.OnMessageAppended(ctx, 1)
			mustUnread(t, e, 1, 10, 2)
			mustUnread(t, e, 1, 11, 2)
		})
	}
}

func TestUnreadCountsAndReset(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e, _ := open()
			_ = e.AddParticipant(ctx, 1, 10)
			_ = e.AddParticipant(ctx, 2, 10)
			e.OnMessageAppended(ctx, 1)
			e.OnMessageAppended(ctx, 1)
			e.OnMessageAppended(ctx, 2)

			counts, err := e.UnreadCounts(ctx, 10, []int64{1, 2, 3})
			if err != nil {
				t.Fatalf("UnreadCounts: %v", err)
			}
			if counts[1] != 2 || counts[2] != 1 || counts[3] != 0 || len(counts) != 3 {
				t.Fatalf("counts = %v", counts)
			}

			if err := e.ResetUnread(ctx, 1, 10); err != nil {
				t.Fatalf("ResetUnread: %v", err)
			}
			mustUnread(t, e, 1, 10, 0)
			mustUnread(t, e, 2, 10, 1)
		})
	}
}

func TestReplaceParticipants(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e, _ := open()
			_ = e.AddParticipant(ctx, 1, 10)
			_ = e.AddParticipant(ctx, 1, 11)
			e.OnMessageAppended(ctx, 1)

			if err := e.ReplaceParticipants(ctx, 1, []int64{11, 12}); err != nil {
				t.Fatalf("ReplaceParticipants: %v", err)
			}
			ids, _ := e.Participants(ctx, 1)
			if len(ids) != 2 || ids[0] != 11 || ids[1] != 12 {
				t.Fatalf("participants = %v, want [11 12]", ids)
			}
			mustUnread(t, e, 1, 10, 1)
			mustUnread(t, e, 1, 11, 1)
		})
	}
}

func TestRedisEngineStoreError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	e := NewRedisEngine(client, testConfig())
	mr.Close()

	if err := e.AddParticipant(context.Background(), 1, 1); !errors.Is(err, ErrStore) {
		t.Fatalf("err = %v, want ErrStore", err)
	}
	if res := e.OnMessageAppended(context.Background(), 1); res != (FanoutResult{}) {
		t.Fatalf("fan-out with store down = %+v", res)
	}
}

func TestRedisKeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	e := NewRedisEngine(client, Config{KeyPrefix: "fest"})

	ctx := context.Background()
	_ = e.AddParticipant(ctx, 12, 34)
	e.OnMessageAppended(ctx, 12)

	if ok, _ := mr.SIsMember("fest:room:12:participants", "34"); !ok {
		t.Fatal("participant not stored under fest:room:12:participants")
	}
	if got := mr.HGet("fest:unread", "12:34"); got != "1" {
		t.Fatalf("fest:unread[12:34] = %q, want 1", got)
	}
}
