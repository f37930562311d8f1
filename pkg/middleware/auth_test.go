package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/somsomparty/chat-core/pkg/jwt"
)

func newRouter(m *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", m.RequireUser(), func(c *gin.Context) {
		c.String(http.StatusOK, strconv.FormatInt(GetUserID(c), 10))
	})
	return r
}

func do(r http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireUserGatewayHeader(t *testing.T) {
	r := newRouter(NewAuthMiddleware(nil))

	w := do(r, "/me", map[string]string{UserIDHeader: "7"})
	if w.Code != http.StatusOK || w.Body.String() != "7" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}

	for _, h := range []string{"", "abc", "0"} {
		w := do(r, "/me", map[string]string{UserIDHeader: h})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d", h, w.Code)
		}
	}
}

func TestRequireUserBearer(t *testing.T) {
	v, err := jwt.NewVerifier("secret", "")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	token, err := v.Sign(9, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	r := newRouter(NewAuthMiddleware(v))

	w := do(r, "/me", map[string]string{AuthHeaderKey: BearerPrefix + token})
	if w.Code != http.StatusOK || w.Body.String() != "9" {
		t.Fatalf("bearer: got %d %q", w.Code, w.Body.String())
	}

	w = do(r, "/me?access_token="+token, nil)
	if w.Code != http.StatusOK || w.Body.String() != "9" {
		t.Fatalf("query token: got %d %q", w.Code, w.Body.String())
	}

	// The gateway header is ignored once tokens are required.
	w = do(r, "/me", map[string]string{UserIDHeader: "9"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("header only: status = %d", w.Code)
	}

	w = do(r, "/me", map[string]string{AuthHeaderKey: "Token " + token})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad scheme: status = %d", w.Code)
	}
}
