package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/storehub-api/internal/model"
)

// SessionCookie carries the signed session token.
const SessionCookie = "auth_token"

const userKey = "user"

// Identifier resolves a session token to the current user, or nil.
type Identifier interface {
	Identify(ctx context.Context, token string) *model.User
}

// Authenticate attaches the caller's user to the context when the request
// carries a valid session. It never rejects; use RequireAuth or RequireAdmin.
// The cookie is tried first; an Authorization: Bearer header is used when the
// cookie is missing or no longer identifies a user.
func Authenticate(identifier Identifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, token := range sessionTokens(c) {
			if user := identifier.Identify(c.Request.Context(), token); user != nil {
				c.Set(userKey, user)
				break
			}
		}
		c.Next()
	}
}

func sessionTokens(c *gin.Context) []string {
	var tokens []string
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		tokens = append(tokens, cookie)
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		if bearer := strings.TrimSpace(header[7:]); bearer != "" {
			tokens = append(tokens, bearer)
		}
	}
	return tokens
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := GetUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

func GetUser(c *gin.Context) *model.User {
	v, _ := c.Get(userKey)
	user, _ := v.(*model.User)
	return user
}

func GetUserID(c *gin.Context) uuid.UUID {
	if user := GetUser(c); user != nil {
		return user.ID
	}
	return uuid.Nil
}

func SetSessionCookie(c *gin.Context, token string, ttl time.Duration, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookie, token, int(ttl.Seconds()), "/", "", secure, true)
}

func ClearSessionCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", secure, true)
}
