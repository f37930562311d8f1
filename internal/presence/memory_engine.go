package presence

import (
	"context"
	"sort"
	"sync"
	"time"
)

type roomUser struct {
	roomID int64
	userID int64
}

// MemoryEngine implements Engine in process memory, for single-node
// deployments and tests.
type MemoryEngine struct {
	cfg Config
	now func() time.Time

	mu           sync.Mutex
	participants map[int64]map[int64]struct{}
	active       map[int64]map[int64]time.Time
	unread       map[roomUser]int64
}

// NewMemoryEngine creates an empty in-memory engine.
func NewMemoryEngine(cfg Config) *MemoryEngine {
	return &MemoryEngine{
		cfg:          cfg.withDefaults(),
		now:          time.Now,
		participants: make(map[int64]map[int64]struct{}),
		active:       make(map[int64]map[int64]time.Time),
		unread:       make(map[roomUser]int64),
	}
}

func (e *MemoryEngine) AddParticipant(_ context.Context, roomID, userID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	set, ok := e.participants[roomID]
	if !ok {
		set = make(map[int64]struct{})
		e.participants[roomID] = set
	}
	set[userID] = struct{}{}
	return nil
}

func (e *MemoryEngine) RemoveParticipant(_ context.Context, roomID, userID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.removeLocked(roomID, userID)
	return nil
}

func (e *MemoryEngine) removeLocked(roomID, userID int64) {
	delete(e.participants[roomID], userID)
	delete(e.active[roomID], userID)
}

func (e *MemoryEngine) MarkActive(_ context.Context, roomID, userID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.participants[roomID][userID]; !ok {
		return ErrNotParticipant
	}
	set, ok := e.active[roomID]
	if !ok {
		set = make(map[int64]time.Time)
		e.active[roomID] = set
	}
	set[userID] = e.now()
	return nil
}

func (e *MemoryEngine) MarkInactive(_ context.Context, roomID, userID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.active[roomID], userID)
	return nil
}

func (e *MemoryEngine) snapshot(roomID int64) ([]int64, map[int64]struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	participants := make([]int64, 0, len(e.participants[roomID]))
	for id := range e.participants[roomID] {
		participants = append(participants, id)
	}

	now := e.now()
	active := make(map[int64]struct{})
	for id, last := range e.active[roomID] {
		if now.Sub(last) < e.cfg.ActiveTTL {
			active[id] = struct{}{}
		} else {
			delete(e.active[roomID], id)
		}
	}
	return participants, active
}

func (e *MemoryEngine) OnMessageAppended(ctx context.Context, roomID int64) FanoutResult {
	participants, active := e.snapshot(roomID)
	return fanout(ctx, roomID, inactive(participants, active), e.cfg.FanoutConcurrency,
		func(ctx context.Context, userID int64) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.mu.Lock()
			e.unread[roomUser{roomID, userID}]++
			e.mu.Unlock()
			return nil
		})
}

func (e *MemoryEngine) UnreadCount(_ context.Context, roomID, userID int64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unread[roomUser{roomID, userID}], nil
}

func (e *MemoryEngine) UnreadCounts(_ context.Context, userID int64, roomIDs []int64) (map[int64]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[int64]int64, len(roomIDs))
	for _, roomID := range roomIDs {
		out[roomID] = e.unread[roomUser{roomID, userID}]
	}
	return out, nil
}

func (e *MemoryEngine) ResetUnread(_ context.Context, roomID, userID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.unread, roomUser{roomID, userID})
	return nil
}

func (e *MemoryEngine) Participants(_ context.Context, roomID int64) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]int64, 0, len(e.participants[roomID]))
	for id := range e.participants[roomID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (e *MemoryEngine) ReplaceParticipants(_ context.Context, roomID int64, userIDs []int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	keep := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		keep[id] = struct{}{}
	}
	for id := range e.participants[roomID] {
		if _, ok := keep[id]; !ok {
			e.removeLocked(roomID, id)
		}
	}
	e.participants[roomID] = keep
	return nil
}

func (e *MemoryEngine) Close() error {
	return nil
}
