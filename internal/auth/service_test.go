package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/windschord/claude-work/internal/common/config"
	"github.com/windschord/claude-work/internal/common/logger"
	"github.com/windschord/claude-work/internal/db"
	"github.com/windschord/claude-work/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestService(t *testing.T, enabled bool) *Service {
	t.Helper()
	conn, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	repo, err := store.New(sqlx.NewDb(conn, db.DriverSQLite))
	require.NoError(t, err)

	svc := NewService(repo, config.AuthConfig{
		Enabled:         enabled,
		Token:           "secret-token",
		SessionTTLHours: 1,
		CookieName:      "session_id",
	}, logger.NewNop())
	svc.cost = bcrypt.MinCost
	return svc
}

func TestLogin(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	_, err := svc.Login(ctx, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid token")

	_, err = svc.Login(ctx, "")
	require.Error(t, err)

	id, err := svc.Login(ctx, "secret-token")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	as, err := svc.VerifySession(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, id, as.TokenHash, "only the hash is stored")
	assert.WithinDuration(t, time.Now().Add(time.Hour), as.ExpiresAt, time.Minute)
}

func TestVerifySession_PicksMatchingSession(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	first, err := svc.Login(ctx, "secret-token")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "secret-token")
	require.NoError(t, err)

	a, err := svc.VerifySession(ctx, first)
	require.NoError(t, err)
	b, err := svc.VerifySession(ctx, second)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	_, err = svc.VerifySession(ctx, "not-a-session")
	assert.Error(t, err)
}

func TestVerifySession_Expired(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	id, err := svc.Login(ctx, "secret-token")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.VerifySession(ctx, id)
	assert.Error(t, err)

	require.NoError(t, svc.PurgeExpired(ctx))
	svc.now = time.Now
	_, err = svc.VerifySession(ctx, id)
	assert.Error(t, err, "purged sessions stay gone")
}

func TestLogout(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	id, err := svc.Login(ctx, "secret-token")
	require.NoError(t, err)
	other, err := svc.Login(ctx, "secret-token")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, id))
	_, err = svc.VerifySession(ctx, id)
	assert.Error(t, err)
	_, err = svc.VerifySession(ctx, other)
	assert.NoError(t, err, "other sessions survive")

	assert.NoError(t, svc.Logout(ctx, id))
	assert.NoError(t, svc.Logout(ctx, ""))
}

func newProtectedRouter(svc *Service) *gin.Engine {
	router := gin.New()
	router.GET("/private", svc.Middleware(), func(c *gin.Context) {
		_, ok := c.Get(contextKey)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})
	return router
}

func TestMiddleware(t *testing.T) {
	svc := newTestService(t, true)
	router := newProtectedRouter(svc)
	id, err := svc.Login(context.Background(), "secret-token")
	require.NoError(t, err)

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized},
		{"bad cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "session_id", Value: "bogus"})
		}, http.StatusUnauthorized},
		{"cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "session_id", Value: id})
		}, http.StatusOK},
		{"query parameter", func(r *http.Request) {
			r.URL.RawQuery = "session_id=" + id
		}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	svc := newTestService(t, false)
	router := newProtectedRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
