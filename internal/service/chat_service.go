package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/somsomparty/chat-core/internal/audit"
	"github.com/somsomparty/chat-core/internal/cache"
	"github.com/somsomparty/chat-core/internal/cursor"
	"github.com/somsomparty/chat-core/internal/domain"
	"github.com/somsomparty/chat-core/internal/membership"
	"github.com/somsomparty/chat-core/internal/messagestore"
	"github.com/somsomparty/chat-core/internal/presence"
	"github.com/somsomparty/chat-core/pkg/log"
)

type chatServiceImpl struct {
	registry membership.Registry
	users    membership.UserDirectory
	messages messagestore.Store
	presence presence.Engine
	cache    cache.PageCache
	opts     Options
	sf       singleflight.Group
	now      func() time.Time
}

// NewChatService wires the components together. pageCache may be nil.
func NewChatService(
	registry membership.Registry,
	users membership.UserDirectory,
	messages messagestore.Store,
	engine presence.Engine,
	pageCache cache.PageCache,
	opts Options,
) ChatService {
	return &chatServiceImpl{
		registry: registry,
		users:    users,
		messages: messages,
		presence: engine,
		cache:    pageCache,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// storeCtx bounds a single store call.
func (s *chatServiceImpl) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

// fail logs the cause of err and returns the error kind the caller sees.
func (s *chatServiceImpl) fail(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, membership.ErrRoomNotFound):
		return ErrRoomNotFound
	case errors.Is(err, membership.ErrNotAMember), errors.Is(err, presence.ErrNotParticipant):
		return ErrNotAMember
	case errors.Is(err, messagestore.ErrInvalidLimit):
		return ErrInvalidArgument
	}

	l := log.Ctx(ctx)
	l.Error().Err(err).Str("op", op).Msg("chat operation failed")
	return ErrUnavailable
}

func (s *chatServiceImpl) checkUser(ctx context.Context, op string, userID int64) error {
	if userID <= 0 {
		return ErrUserNotFound
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	ok, err := s.users.Exists(sctx, userID)
	if err != nil {
		return s.fail(ctx, op, err)
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

func (s *chatServiceImpl) JoinRoom(ctx context.Context, userID, roomID int64) (int64, error) {
	ctx = log.WithRoom(ctx, roomID, userID)
	if err := s.checkUser(ctx, "join_room", userID); err != nil {
		return 0, err
	}

	sctx, cancel := s.storeCtx(ctx)
	_, created, err := s.registry.Join(sctx, userID, roomID)
	cancel()
	if err != nil {
		return 0, s.fail(ctx, "join_room", err)
	}

	// The membership stands even if presence is behind; a retried join
	// re-adds the participant.
	pctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.presence.AddParticipant(pctx, roomID, userID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to add participant after join")
	}

	if created {
		audit.Log(ctx, audit.ActionJoinRoom, userID, roomID, "user joined room")
	}
	return roomID, nil
}

func (s *chatServiceImpl) LeaveRoom(ctx context.Context, userID, roomID int64) error {
	ctx = log.WithRoom(ctx, roomID, userID)
	if err := s.checkUser(ctx, "leave_room", userID); err != nil {
		return err
	}

	sctx, cancel := s.storeCtx(ctx)
	err := s.registry.Leave(sctx, userID, roomID)
	cancel()
	if err != nil {
		return s.fail(ctx, "leave_room", err)
	}

	pctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.presence.RemoveParticipant(pctx, roomID, userID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to remove participant after leave")
	}

	audit.Log(ctx, audit.ActionLeaveRoom, userID, roomID, "user left room")
	return nil
}

func (s *chatServiceImpl) SendMessage(ctx context.Context, req SendMessageRequest) (*domain.Message, error) {
	if req.RoomID <= 0 || req.SenderID <= 0 {
		return nil, fmt.Errorf("%w: room and sender are required", ErrInvalidArgument)
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, fmt.Errorf("%w: body is empty", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(req.Body) > s.opts.MaxBodyLength {
		return nil, fmt.Errorf("%w: body exceeds %d characters", ErrInvalidArgument, s.opts.MaxBodyLength)
	}
	if req.SendTime < 0 {
		return nil, fmt.Errorf("%w: negative send time", ErrInvalidArgument)
	}

	ctx = log.WithRoom(ctx, req.RoomID, req.SenderID)

	msg := &domain.Message{
		RoomID:   req.RoomID,
		SendTime: req.SendTime,
		SenderID: req.SenderID,
		Body:     req.Body,
	}
	if msg.SendTime == 0 {
		msg.SendTime = s.now().UnixMilli()
	}

	sctx, cancel := s.storeCtx(ctx)
	err := s.messages.Append(sctx, msg)
	cancel()
	if err != nil {
		return nil, s.fail(ctx, "send_message", err)
	}

	s.fanout(ctx, req.RoomID)
	return msg, nil
}

// fanout increments unread counters on a context that outlives the caller's
// cancellation but not its own timeout.
func (s *chatServiceImpl) fanout(ctx context.Context, roomID int64) presence.FanoutResult {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.FanoutTimeout)
	defer cancel()

	res := s.presence.OnMessageAppended(fctx, roomID)

	l := log.ForRoom(ctx, roomID, 0)
	evt := l.Debug()
	if res.Failed > 0 {
		evt = l.Warn()
	}
	evt.Int("recipients", res.Recipients).
		Int("incremented", res.Incremented).
		Int("failed", res.Failed).
		Msg("unread fan-out finished")
	return res
}

func (s *chatServiceImpl) FetchMessages(ctx context.Context, roomID int64, cursorStr string, limit int) (*domain.MessagePage, error) {
	switch {
	case limit < 0:
		return nil, fmt.Errorf("%w: negative limit", ErrInvalidArgument)
	case limit == 0:
		limit = s.opts.DefaultLimit
	case limit > s.opts.MaxLimit:
		limit = s.opts.MaxLimit
	}

	ctx = log.WithRoom(ctx, roomID, 0)

	// An unknown room is reported before any cursor problem.
	sctx, cancel := s.storeCtx(ctx)
	room, err := s.registry.GetRoom(sctx, roomID)
	cancel()
	if err != nil {
		return nil, s.fail(ctx, "fetch_messages", err)
	}

	var after *cursor.Position
	if cursorStr != "" {
		pos, err := cursor.Decode(cursorStr)
		if err != nil {
			return nil, ErrInvalidCursor
		}
		if pos.RoomID != roomID {
			return nil, fmt.Errorf("%w: cursor belongs to another room", ErrInvalidCursor)
		}
		after = pos
	}

	result, err := s.fetchPage(ctx, roomID, cursorStr, after, limit)
	if err != nil {
		return nil, s.fail(ctx, "fetch_messages", err)
	}

	return &domain.MessagePage{
		RoomID:     room.ID,
		RoomName:   room.Name,
		Messages:   result.Messages,
		NextCursor: result.NextCursor,
		HasMore:    result.HasMore,
	}, nil
}

func (s *chatServiceImpl) fetchPage(ctx context.Context, roomID int64, cursorStr string, after *cursor.Position, limit int) (*cache.PageCacheResult, error) {
	// The newest page changes with every message, so it always goes to the store.
	if after == nil || s.cache == nil {
		return s.readStore(ctx, roomID, after, limit)
	}

	cacheKey := s.cache.BuildKey(roomID, cursorStr, limit)

	// Use singleflight to prevent duplicate requests for the same key
	result, err, _ := s.sf.Do(cacheKey, func() (interface{}, error) {
		return s.fetchWithCache(ctx, roomID, after, limit, cacheKey)
	})
	if err != nil {
		return nil, err
	}

	cacheResult, ok := result.(*cache.PageCacheResult)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return cacheResult, nil
}

func (s *chatServiceImpl) fetchWithCache(ctx context.Context, roomID int64, after *cursor.Position, limit int, cacheKey string) (*cache.PageCacheResult, error) {
	cctx, cancel := s.storeCtx(ctx)
	cached, err := s.cache.Get(cctx, cacheKey)
	cancel()
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		// Log error but continue to fetch from the store
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("cache get error")
	}

	result, err := s.readStore(ctx, roomID, after, limit)
	if err != nil {
		return nil, err
	}

	// Store in cache (async to avoid blocking response)
	go func() {
		setCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(setCtx, cacheKey, result, s.opts.CacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("cache set error")
		}
	}()

	return result, nil
}

func (s *chatServiceImpl) readStore(ctx context.Context, roomID int64, after *cursor.Position, limit int) (*cache.PageCacheResult, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	page, err := s.messages.FetchPage(sctx, roomID, after, limit)
	if err != nil {
		return nil, err
	}

	result := &cache.PageCacheResult{Messages: page.Messages}
	if page.Next != nil {
		result.NextCursor = cursor.Encode(*page.Next)
		result.HasMore = true
	}
	return result, nil
}

func (s *chatServiceImpl) ListMyRooms(ctx context.Context, userID int64) ([]domain.RoomListItem, error) {
	ctx = log.WithRoom(ctx, 0, userID)

	sctx, cancel := s.storeCtx(ctx)
	rooms, err := s.registry.ListRoomsForUser(sctx, userID)
	cancel()
	if err != nil {
		return nil, s.fail(ctx, "list_my_rooms", err)
	}

	roomIDs := make([]int64, len(rooms))
	for i, r := range rooms {
		roomIDs[i] = r.RoomID
	}

	// Unread counts are best effort; the list is still useful without them.
	pctx, cancel := s.storeCtx(ctx)
	counts, err := s.presence.UnreadCounts(pctx, userID, roomIDs)
	cancel()
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to read unread counts")
		counts = nil
	}

	items := make([]domain.RoomListItem, len(rooms))
	for i, r := range rooms {
		items[i] = domain.RoomListItem{
			RoomID:           r.RoomID,
			RoomName:         r.RoomName,
			ParticipantCount: r.ParticipantCount,
			UnreadCount:      counts[r.RoomID],
		}
	}
	return items, nil
}

// roomIDFromKey keeps only the digits of key, so "chatRoom:12" and
// "chat:room:12:tick" both yield 12.
func roomIDFromKey(key string) (int64, bool) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < utf8.RuneSelf {
			return r
		}
		return -1
	}, key)
	if digits == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *chatServiceImpl) NotifyMessageTick(ctx context.Context, roomKey string) {
	l := log.Ctx(ctx)
	roomID, ok := roomIDFromKey(roomKey)
	if !ok {
		l.Warn().Str(log.FieldRoomKey, roomKey).Msg("ignoring message tick without a room id")
		return
	}
	s.fanout(log.WithRoom(ctx, roomID, 0), roomID)
}

func (s *chatServiceImpl) RegisterRoom(ctx context.Context, roomID int64, name string) error {
	if roomID <= 0 || strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: room id and name are required", ErrInvalidArgument)
	}
	ctx = log.WithRoom(ctx, roomID, 0)

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	room, err := s.registry.CreateRoom(sctx, roomID, name)
	if err != nil {
		return s.fail(ctx, "register_room", err)
	}

	audit.LogWithDetail(ctx, audit.ActionRegisterRoom, 0, roomID, room.Name, "chat room registered")
	return nil
}

func (s *chatServiceImpl) MarkActive(ctx context.Context, roomID, userID int64) error {
	ctx = log.WithRoom(ctx, roomID, userID)
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.presence.MarkActive(sctx, roomID, userID); err != nil {
		return s.fail(ctx, "mark_active", err)
	}
	return nil
}

func (s *chatServiceImpl) MarkInactive(ctx context.Context, roomID, userID int64) error {
	ctx = log.WithRoom(ctx, roomID, userID)
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.presence.MarkInactive(sctx, roomID, userID); err != nil {
		return s.fail(ctx, "mark_inactive", err)
	}
	return nil
}

func (s *chatServiceImpl) MarkRead(ctx context.Context, roomID, userID int64) error {
	ctx = log.WithRoom(ctx, roomID, userID)

	sctx, cancel := s.storeCtx(ctx)
	ok, err := s.registry.IsMember(sctx, userID, roomID)
	cancel()
	if err != nil {
		return s.fail(ctx, "mark_read", err)
	}
	if !ok {
		return ErrNotAMember
	}

	pctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.presence.ResetUnread(pctx, roomID, userID); err != nil {
		return s.fail(ctx, "mark_read", err)
	}

	audit.Log(ctx, audit.ActionMarkRead, userID, roomID, "unread counter reset")
	return nil
}

func (s *chatServiceImpl) ReconcilePresence(ctx context.Context) (int, error) {
	sctx, cancel := s.storeCtx(ctx)
	roomIDs, err := s.registry.ListRoomIDs(sctx)
	cancel()
	if err != nil {
		return 0, s.fail(ctx, "reconcile_presence", err)
	}

	for i, roomID := range roomIDs {
		rctx, cancel := s.storeCtx(ctx)
		members, err := s.registry.ListMembers(rctx, roomID)
		if err == nil {
			err = s.presence.ReplaceParticipants(rctx, roomID, members)
		}
		cancel()
		if err != nil {
			return i, s.fail(log.WithRoom(ctx, roomID, 0), "reconcile_presence", err)
		}
		rl := log.ForRoom(ctx, roomID, 0)
		rl.Debug().Int("participants", len(members)).Msg("presence reconciled")
	}
	return len(roomIDs), nil
}
