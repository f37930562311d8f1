package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/somsomparty/chat-core/internal/service"
	"github.com/somsomparty/chat-core/pkg/pubsub"
)

type registeringService struct {
	service.ChatService
	rooms map[int64]string
}

func (r *registeringService) RegisterRoom(_ context.Context, roomID int64, name string) error {
	if roomID <= 0 {
		return service.ErrInvalidArgument
	}
	r.rooms[roomID] = name
	return nil
}

func TestRouterRoomCreated(t *testing.T) {
	svc := &registeringService{rooms: map[int64]string{}}
	r := NewRouter()
	r.Handle(pubsub.EventRoomCreated, RoomCreated(svc))

	ev, err := pubsub.NewEvent(pubsub.EventRoomCreated, "7", pubsub.RoomCreatedPayload{RoomID: 7, RoomName: "Seoul Jazz"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if err := r.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if svc.rooms[7] != "Seoul Jazz" {
		t.Fatalf("rooms = %v", svc.rooms)
	}
}

func TestRouterErrors(t *testing.T) {
	svc := &registeringService{rooms: map[int64]string{}}
	r := NewRouter()
	r.Handle(pubsub.EventRoomCreated, RoomCreated(svc))

	if err := r.Dispatch(context.Background(), &pubsub.Event{Type: "room_deleted"}); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("unknown type err = %v, want ErrNoHandler", err)
	}

	bad := &pubsub.Event{Type: pubsub.EventRoomCreated, Payload: []byte(`"not an object"`)}
	if err := r.Dispatch(context.Background(), bad); err == nil {
		t.Fatal("expected payload error")
	}

	zero, _ := pubsub.NewEvent(pubsub.EventRoomCreated, "0", pubsub.RoomCreatedPayload{})
	if err := r.Dispatch(context.Background(), zero); !errors.Is(err, service.ErrInvalidArgument) {
		t.Fatalf("zero room err = %v", err)
	}
}

func TestRouterRunRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ps := pubsub.NewRedisPubSubFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer ps.Close()

	registered := make(chan int64, 1)
	r := NewRouter()
	r.Handle(pubsub.EventRoomCreated, func(ctx context.Context, ev *pubsub.Event) error {
		var p pubsub.RoomCreatedPayload
		if err := ev.UnmarshalPayload(&p); err != nil {
			return err
		}
		select {
		case registered <- p.RoomID:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, ps)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if err := pubsub.PublishRoomCreated(ctx, ps, 21, "Busan Rock"); err != nil {
			t.Fatalf("PublishRoomCreated: %v", err)
		}
		select {
		case id := <-registered:
			if id != 21 {
				t.Fatalf("registered room %d, want 21", id)
			}
			cancel()
			<-done
			return
		case <-deadline:
			cancel()
			t.Fatal("room_created never dispatched")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
