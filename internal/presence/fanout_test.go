package presence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFanoutPartialFailure(t *testing.T) {
	var mu sync.Mutex
	got := map[int64]int{}

	res := fanout(context.Background(), 1, []int64{1, 2, 3, 4, 5}, 2, func(_ context.Context, userID int64) error {
		if userID == 3 {
			return errors.New("boom")
		}
		mu.Lock()
		got[userID]++
		mu.Unlock()
		return nil
	})

	if res != (FanoutResult{Recipients: 5, Incremented: 4, Failed: 1}) {
		t.Fatalf("result = %+v", res)
	}
	for _, id := range []int64{1, 2, 4, 5} {
		if got[id] != 1 {
			t.Errorf("user %d incremented %d times, want 1", id, got[id])
		}
	}
}

func TestFanoutBounded(t *testing.T) {
	var inFlight, peak atomic.Int64
	users := make([]int64, 32)
	for i := range users {
		users[i] = int64(i)
	}

	fanout(context.Background(), 1, users, 3, func(context.Context, int64) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	if peak.Load() > 3 {
		t.Fatalf("peak concurrency %d exceeds limit 3", peak.Load())
	}
}

func TestInactive(t *testing.T) {
	got := inactive([]int64{1, 2, 3}, map[int64]struct{}{1: {}, 9: {}})
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("inactive = %v, want [2 3]", got)
	}
}
