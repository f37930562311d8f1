package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/somsomparty/chat-core/internal/domain"
	"github.com/somsomparty/chat-core/internal/service"
	"github.com/somsomparty/chat-core/pkg/middleware"
)

func dial(t *testing.T, srv *httptest.Server, path string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	header := http.Header{}
	header.Set(middleware.UserIDHeader, "5")
	return websocket.DefaultDialer.Dial(url, header)
}

func waitFor(t *testing.T, svc *stubService, call string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, c := range svc.called() {
			if c == call {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("call %q not seen; calls = %v", call, svc.called())
}

func TestPresenceSocketLifecycle(t *testing.T) {
	svc := &stubService{}
	srv := httptest.NewServer(newRouter(svc))
	defer srv.Close()

	conn, _, err := dial(t, srv, "/api/v1/ws/rooms/7/presence")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var frame domain.PresenceFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Type != "active" || frame.RoomID != 7 {
		t.Fatalf("frame = %+v", frame)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("heartbeat")); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		n := 0
		for _, c := range svc.called() {
			if c == "active 7 5" {
				n++
			}
		}
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("heartbeat did not refresh presence; calls = %v", svc.called())
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = conn.Close()
	waitFor(t, svc, "inactive 7 5")
}

func TestPresenceSocketRejectsNonMember(t *testing.T) {
	svc := &stubService{err: service.ErrNotAMember}
	srv := httptest.NewServer(newRouter(svc))
	defer srv.Close()

	_, resp, err := dial(t, srv, "/api/v1/ws/rooms/7/presence")
	if err == nil {
		t.Fatal("dial succeeded for a non-member")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("response = %+v", resp)
	}
}
