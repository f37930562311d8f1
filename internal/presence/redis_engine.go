package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/somsomparty/chat-core/pkg/log"
)

// Redis key patterns:
// {prefix}:room:{room_id}:participants   SET<user_id>            - room participants
// {prefix}:room:{room_id}:active         ZSET<user_id, last_ms>  - last presence signal per user
// {prefix}:unread                        HASH{room_id}:{user_id} - unread counters

// RedisEngine implements Engine on Redis. The client is owned by the caller.
type RedisEngine struct {
	client *redis.Client
	cfg    Config
	now    func() time.Time
}

// NewRedisEngine creates a Redis-backed engine.
func NewRedisEngine(client *redis.Client, cfg Config) *RedisEngine {
	return &RedisEngine{
		client: client,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
}

func (e *RedisEngine) participantsKey(roomID int64) string {
	return fmt.Sprintf("%s:room:%d:participants", e.cfg.KeyPrefix, roomID)
}

func (e *RedisEngine) activeKey(roomID int64) string {
	return fmt.Sprintf("%s:room:%d:active", e.cfg.KeyPrefix, roomID)
}

func (e *RedisEngine) unreadKey() string {
	return e.cfg.KeyPrefix + ":unread"
}

func unreadField(roomID, userID int64) string {
	return strconv.FormatInt(roomID, 10) + ":" + strconv.FormatInt(userID, 10)
}

func member(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStore, err)
}

func (e *RedisEngine) AddParticipant(ctx context.Context, roomID, userID int64) error {
	if err := e.client.SAdd(ctx, e.participantsKey(roomID), member(userID)).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (e *RedisEngine) RemoveParticipant(ctx context.Context, roomID, userID int64) error {
	pipe := e.client.TxPipeline()
	pipe.SRem(ctx, e.participantsKey(roomID), member(userID))
	pipe.ZRem(ctx, e.activeKey(roomID), member(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

// markActiveScript adds the active entry only while the user is still a
// participant. KEYS: participants, active. ARGV: member, score.
var markActiveScript = redis.NewScript(`
if redis.call("SISMEMBER", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[1])
return 1
`)

func (e *RedisEngine) MarkActive(ctx context.Context, roomID, userID int64) error {
	keys := []string{e.participantsKey(roomID), e.activeKey(roomID)}
	added, err := markActiveScript.Run(ctx, e.client, keys, member(userID), e.now().UnixMilli()).Int()
	if err != nil {
		return storeErr(err)
	}
	if added == 0 {
		return ErrNotParticipant
	}
	return nil
}

func (e *RedisEngine) MarkInactive(ctx context.Context, roomID, userID int64) error {
	if err := e.client.ZRem(ctx, e.activeKey(roomID), member(userID)).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

// snapshot reads the participants and the currently active users, trimming
// expired active entries on the way.
func (e *RedisEngine) snapshot(ctx context.Context, roomID int64) ([]int64, map[int64]struct{}, error) {
	cutoff := strconv.FormatInt(e.now().Add(-e.cfg.ActiveTTL).UnixMilli(), 10)

	pipe := e.client.TxPipeline()
	partCmd := pipe.SMembers(ctx, e.participantsKey(roomID))
	pipe.ZRemRangeByScore(ctx, e.activeKey(roomID), "-inf", cutoff)
	activeCmd := pipe.ZRange(ctx, e.activeKey(roomID), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, nil, err
	}

	participants, err := parseIDs(partCmd.Val())
	if err != nil {
		return nil, nil, err
	}
	activeIDs, err := parseIDs(activeCmd.Val())
	if err != nil {
		return nil, nil, err
	}
	active := make(map[int64]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = struct{}{}
	}
	return participants, active, nil
}

func (e *RedisEngine) OnMessageAppended(ctx context.Context, roomID int64) FanoutResult {
	participants, active, err := e.snapshot(ctx, roomID)
	if err != nil {
		l := log.ForRoom(ctx, roomID, 0)
		l.Error().Err(err).Msg("failed to read presence for fan-out")
		return FanoutResult{}
	}

	key := e.unreadKey()
	return fanout(ctx, roomID, inactive(participants, active), e.cfg.FanoutConcurrency,
		func(ctx context.Context, userID int64) error {
			return e.client.HIncrBy(ctx, key, unreadField(roomID, userID), 1).Err()
		})
}

func (e *RedisEngine) UnreadCount(ctx context.Context, roomID, userID int64) (int64, error) {
	n, err := e.client.HGet(ctx, e.unreadKey(), unreadField(roomID, userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, storeErr(err)
	}
	return n, nil
}

func (e *RedisEngine) UnreadCounts(ctx context.Context, userID int64, roomIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(roomIDs))
	if len(roomIDs) == 0 {
		return out, nil
	}

	fields := make([]string, len(roomIDs))
	for i, roomID := range roomIDs {
		fields[i] = unreadField(roomID, userID)
	}
	vals, err := e.client.HMGet(ctx, e.unreadKey(), fields...).Result()
	if err != nil {
		return nil, storeErr(err)
	}

	for i, roomID := range roomIDs {
		out[roomID] = 0
		s, ok := vals[i].(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, storeErr(err)
		}
		out[roomID] = n
	}
	return out, nil
}

func (e *RedisEngine) ResetUnread(ctx context.Context, roomID, userID int64) error {
	if err := e.client.HDel(ctx, e.unreadKey(), unreadField(roomID, userID)).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (e *RedisEngine) Participants(ctx context.Context, roomID int64) ([]int64, error) {
	members, err := e.client.SMembers(ctx, e.participantsKey(roomID)).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	ids, err := parseIDs(members)
	if err != nil {
		return nil, storeErr(err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (e *RedisEngine) ReplaceParticipants(ctx context.Context, roomID int64, userIDs []int64) error {
	current, err := e.Participants(ctx, roomID)
	if err != nil {
		return err
	}
	keep := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		keep[id] = struct{}{}
	}

	pipe := e.client.TxPipeline()
	pipe.Del(ctx, e.participantsKey(roomID))
	if len(userIDs) > 0 {
		members := make([]interface{}, len(userIDs))
		for i, id := range userIDs {
			members[i] = member(id)
		}
		pipe.SAdd(ctx, e.participantsKey(roomID), members...)
	}
	for _, id := range current {
		if _, ok := keep[id]; ok {
			continue
		}
		pipe.ZRem(ctx, e.activeKey(roomID), member(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (e *RedisEngine) Close() error {
	return nil
}

func parseIDs(members []string) ([]int64, error) {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid member %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
