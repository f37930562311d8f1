package membership

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/somsomparty/chat-core/internal/domain"
	"github.com/somsomparty/chat-core/pkg/database"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "chat.db"),
		LogLevel: "silent",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := database.AutoMigrate(db, &domain.UserModel{}); err != nil {
		t.Fatalf("migrate users: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func TestCreateRoomIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewGormRegistry(openTestDB(t))

	first, err := r.CreateRoom(ctx, 7, "Seoul Jazz")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	again, err := r.CreateRoom(ctx, 7, "renamed")
	if err != nil {
		t.Fatalf("CreateRoom again: %v", err)
	}
	if again.Name != "Seoul Jazz" || again.ID != first.ID {
		t.Fatalf("second create changed the room: %+v", again)
	}

	if _, err := r.GetRoom(ctx, 8); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("GetRoom(8) err = %v, want ErrRoomNotFound", err)
	}
}

func TestJoinIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewGormRegistry(openTestDB(t))
	if _, err := r.CreateRoom(ctx, 1, "a"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	m, created, err := r.Join(ctx, 10, 1)
	if err != nil || !created {
		t.Fatalf("first join: created=%v err=%v", created, err)
	}
	m2, created, err := r.Join(ctx, 10, 1)
	if err != nil || created {
		t.Fatalf("second join: created=%v err=%v", created, err)
	}
	if !m.JoinedAt.Equal(m2.JoinedAt) {
		t.Fatalf("second join returned a different record: %v vs %v", m.JoinedAt, m2.JoinedAt)
	}

	members, err := r.ListMembers(ctx, 1)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 1 || members[0] != 10 {
		t.Fatalf("members = %v, want [10]", members)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	r := NewGormRegistry(openTestDB(t))
	if _, _, err := r.Join(context.Background(), 1, 99); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("err = %v, want ErrRoomNotFound", err)
	}
}

func TestLeave(t *testing.T) {
	ctx := context.Background()
	r := NewGormRegistry(openTestDB(t))
	if _, err := r.CreateRoom(ctx, 1, "a"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	if err := r.Leave(ctx, 10, 1); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("leave without join err = %v, want ErrNotAMember", err)
	}
	if err := r.Leave(ctx, 10, 2); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("leave unknown room err = %v, want ErrRoomNotFound", err)
	}

	if _, _, err := r.Join(ctx, 10, 1); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := r.Leave(ctx, 10, 1); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	ok, err := r.IsMember(ctx, 10, 1)
	if err != nil || ok {
		t.Fatalf("IsMember after leave = %v, %v", ok, err)
	}
}

func TestListRoomsForUser(t *testing.T) {
	ctx := context.Background()
	r := NewGormRegistry(openTestDB(t))
	for id, name := range map[int64]string{1: "one", 2: "two", 3: "three"} {
		if _, err := r.CreateRoom(ctx, id, name); err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
	}
	joins := [][2]int64{{10, 1}, {11, 1}, {12, 1}, {10, 2}, {11, 3}}
	for _, j := range joins {
		if _, _, err := r.Join(ctx, j[0], j[1]); err != nil {
			t.Fatalf("Join(%d, %d): %v", j[0], j[1], err)
		}
	}

	rooms, err := r.ListRoomsForUser(ctx, 10)
	if err != nil {
		t.Fatalf("ListRoomsForUser: %v", err)
	}
	want := []domain.RoomSummary{
		{RoomID: 1, RoomName: "one", ParticipantCount: 3},
		{RoomID: 2, RoomName: "two", ParticipantCount: 1},
	}
	if len(rooms) != len(want) {
		t.Fatalf("rooms = %+v, want %+v", rooms, want)
	}
	for i := range want {
		if rooms[i] != want[i] {
			t.Errorf("room %d = %+v, want %+v", i, rooms[i], want[i])
		}
	}

	// Counts are live: a leave is visible on the next call.
	if err := r.Leave(ctx, 12, 1); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	rooms, err = r.ListRoomsForUser(ctx, 10)
	if err != nil {
		t.Fatalf("ListRoomsForUser: %v", err)
	}
	if rooms[0].ParticipantCount != 2 {
		t.Fatalf("count after leave = %d, want 2", rooms[0].ParticipantCount)
	}

	none, err := r.ListRoomsForUser(ctx, 99)
	if err != nil || len(none) != 0 {
		t.Fatalf("user without rooms: %+v, %v", none, err)
	}

	ids, err := r.ListRoomIDs(ctx)
	if err != nil || len(ids) != 3 {
		t.Fatalf("ListRoomIDs = %v, %v", ids, err)
	}
}

func TestGormUserDirectory(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if err := db.Create(&domain.UserModel{ID: 5}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	dir := NewGormUserDirectory(db)
	if ok, err := dir.Exists(ctx, 5); err != nil || !ok {
		t.Fatalf("Exists(5) = %v, %v", ok, err)
	}
	if ok, err := dir.Exists(ctx, 6); err != nil || ok {
		t.Fatalf("Exists(6) = %v, %v", ok, err)
	}

	var trusting TrustingUserDirectory
	if ok, _ := trusting.Exists(ctx, 0); ok {
		t.Fatal("trusting directory accepted id 0")
	}
}
