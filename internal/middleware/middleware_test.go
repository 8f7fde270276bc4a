package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storehub-api/internal/model"
)

func init() { gin.SetMode(gin.TestMode) }

type stubIdentifier map[string]*model.User

func (s stubIdentifier) Identify(_ context.Context, token string) *model.User { return s[token] }

func newAuthRouter(ids Identifier) *gin.Engine {
	r := gin.New()
	r.Use(Authenticate(ids))
	r.GET("/open", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": GetUserID(c)})
	})
	r.GET("/private", RequireAuth(), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/admin", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func do(r http.Handler, path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate_Tiers(t *testing.T) {
	customer := &model.User{ID: uuid.New(), Email: "c@example.com"}
	admin := &model.User{ID: uuid.New(), Email: "a@example.com", IsAdmin: true}
	r := newAuthRouter(stubIdentifier{"customer-token": customer, "admin-token": admin})

	withCookie := func(token string) func(*http.Request) {
		return func(req *http.Request) { req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token}) }
	}
	withBearer := func(token string) func(*http.Request) {
		return func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }
	}

	assert.Equal(t, http.StatusOK, do(r, "/open", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/private", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/private", withCookie("bogus")).Code)
	assert.Equal(t, http.StatusOK, do(r, "/private", withCookie("customer-token")).Code)
	assert.Equal(t, http.StatusOK, do(r, "/private", withBearer("customer-token")).Code)

	assert.Equal(t, http.StatusUnauthorized, do(r, "/admin", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "/admin", withCookie("customer-token")).Code)
	assert.Equal(t, http.StatusOK, do(r, "/admin", withCookie("admin-token")).Code)
}

func TestAuthenticate_StaleCookieFallsBackToBearer(t *testing.T) {
	customer := &model.User{ID: uuid.New(), Email: "c@example.com"}
	admin := &model.User{ID: uuid.New(), Email: "a@example.com", IsAdmin: true}
	r := newAuthRouter(stubIdentifier{"customer-token": customer, "admin-token": admin})

	both := func(cookie, bearer string) func(*http.Request) {
		return func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: cookie})
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
	}

	w := do(r, "/open", both("expired-token", "customer-token"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), customer.ID.String())

	// A valid cookie still takes precedence over the header.
	assert.Equal(t, http.StatusForbidden, do(r, "/admin", both("customer-token", "admin-token")).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/private", both("expired-token", "also-bogus")).Code)
}

func TestSessionCookieAttributes(t *testing.T) {
	r := gin.New()
	r.GET("/login", func(c *gin.Context) { SetSessionCookie(c, "tok", 7*24*time.Hour, false) })
	r.GET("/logout", func(c *gin.Context) { ClearSessionCookie(c, false) })

	cookies := do(r, "/login", nil).Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, SessionCookie, c.Name)
	assert.Equal(t, "tok", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, 604800, c.MaxAge)

	cleared := do(r, "/logout", nil).Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, "", cleared[0].Value)
	assert.Less(t, cleared[0].MaxAge, 0)
}

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := gin.New()
	r.GET("/login", RateLimiter(client, "auth", 2, time.Minute, logger), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, "/login", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, "/login", nil).Code)
	w := do(r, "/login", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, do(r, "/login", nil).Code)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr.Close()

	r := gin.New()
	r.GET("/login", RateLimiter(client, "auth", 1, time.Minute, logger), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(r, "/login", nil).Code)
	}
}
