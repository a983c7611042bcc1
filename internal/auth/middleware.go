package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/u-wave/u-wave-core-sub000/pkg/jwt"
	"github.com/u-wave/u-wave-core-sub000/pkg/redis"
)

const cookieName = "auth_token"

type Sessions interface {
	StoreSession(ctx context.Context, sessionID string, session *redis.Session) error
	GetSession(ctx context.Context, sessionID string) (*redis.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// tokenFromRequest looks in the cookie, then the Authorization header, then
// the query string (for WebSocket upgrades).
func tokenFromRequest(c *gin.Context) string {
	if token, err := c.Cookie(cookieName); err == nil && token != "" {
		return token
	}
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return c.Query("token")
}

func AuthMiddleware(signer *jwt.Signer, sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization token"})
			return
		}

		claims, err := signer.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		session, err := sessions.GetSession(c.Request.Context(), claims.SessionID)
		if err != nil || session.UserID != claims.UserID {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session not found"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("session_id", claims.SessionID)
		c.Next()
	}
}
