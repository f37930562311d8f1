package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/somsomparty/chat-core/pkg/jwt"
	"github.com/somsomparty/chat-core/pkg/response"
)

const (
	UserIDKey     = "user_id"
	AuthHeaderKey = "Authorization"
	UserIDHeader  = "X-User-ID"
	BearerPrefix  = "Bearer "
)

// AuthMiddleware resolves the calling user. With a verifier it requires a
// bearer token; without one it trusts the X-User-ID header set by an
// upstream gateway.
type AuthMiddleware struct {
	verifier *jwt.Verifier
}

// NewAuthMiddleware creates a new auth middleware. verifier may be nil.
func NewAuthMiddleware(verifier *jwt.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// RequireUser returns a Gin middleware that sets the caller's user id.
func (m *AuthMiddleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, msg := m.resolve(c)
		if userID == 0 {
			response.Unauthorized(c, msg)
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

func (m *AuthMiddleware) resolve(c *gin.Context) (int64, string) {
	if m.verifier == nil {
		id, err := strconv.ParseInt(c.GetHeader(UserIDHeader), 10, 64)
		if err != nil || id <= 0 {
			return 0, "missing or invalid " + UserIDHeader + " header"
		}
		return id, ""
	}

	authHeader := c.GetHeader(AuthHeaderKey)
	if authHeader == "" {
		// Browsers cannot set headers on WebSocket upgrades.
		if token := c.Query("access_token"); token != "" {
			authHeader = BearerPrefix + token
		}
	}
	if authHeader == "" {
		return 0, "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, BearerPrefix) {
		return 0, "invalid authorization format"
	}

	claims, err := m.verifier.ValidateToken(strings.TrimPrefix(authHeader, BearerPrefix))
	if err != nil {
		return 0, err.Error()
	}
	id, err := claims.UserID()
	if err != nil {
		return 0, err.Error()
	}
	return id, ""
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) int64 {
	if id, exists := c.Get(UserIDKey); exists {
		if v, ok := id.(int64); ok {
			return v
		}
	}
	return 0
}
