package presence

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/somsomparty/chat-core/pkg/log"
)

// inactive returns participants whose user id is not in active.
func inactive(participants []int64, active map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(participants))
	for _, id := range participants {
		if _, ok := active[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// fanout runs incr for every user with at most concurrency calls in flight.
// A failing user does not stop the others.
func fanout(ctx context.Context, roomID int64, users []int64, concurrency int, incr func(ctx context.Context, userID int64) error) FanoutResult {
	res := FanoutResult{Recipients: len(users)}
	if len(users) == 0 {
		return res
	}

	var ok, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(concurrency)

	l := log.ForRoom(ctx, roomID, 0)
	for _, userID := range users {
		g.Go(func() error {
			if err := incr(ctx, userID); err != nil {
				failed.Add(1)
				l.Warn().Err(err).
					Int64(log.FieldRecipient, userID).
					Msg("unread increment failed")
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res.Incremented = int(ok.Load())
	res.Failed = int(failed.Load())
	return res
}
