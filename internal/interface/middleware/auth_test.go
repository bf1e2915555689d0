package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/nimbusbyte/user-auth-service/pkg/helpers"
)

func newGuardedEngine(jwt *helpers.JWTManager, reached *bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", Auth(jwt), func(c *gin.Context) {
		*reached = true
		c.JSON(http.StatusOK, gin.H{
			"userID":   c.GetString(CtxUserIDKey),
			"userName": c.GetString(CtxUsernameKey),
		})
	})
	return r
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	jwt := helpers.NewJWTManager("access-secret", "refresh-secret", 15*time.Minute, 48*time.Hour)
	reached := false
	r := newGuardedEngine(jwt, &reached)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	require.False(t, reached, "handler must not run without a token")
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	expired := helpers.NewJWTManager("access-secret", "refresh-secret", -time.Minute, 48*time.Hour)
	token, _, err := expired.GenerateAccessToken("u-1", "alice", "a@x.com")
	require.NoError(t, err)

	jwt := helpers.NewJWTManager("access-secret", "refresh-secret", 15*time.Minute, 48*time.Hour)
	reached := false
	r := newGuardedEngine(jwt, &reached)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	require.False(t, reached)
}

func TestAuthRejectsRefreshTokenOnProtectedRoute(t *testing.T) {
	jwt := helpers.NewJWTManager("access-secret", "refresh-secret", 15*time.Minute, 48*time.Hour)
	refresh, _, err := jwt.GenerateRefreshToken("u-1", "alice", "a@x.com")
	require.NoError(t, err)

	reached := false
	r := newGuardedEngine(jwt, &reached)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", refresh)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	require.False(t, reached)
}

func TestAuthAttachesIdentity(t *testing.T) {
	jwt := helpers.NewJWTManager("access-secret", "refresh-secret", 15*time.Minute, 48*time.Hour)
	token, _, err := jwt.GenerateAccessToken("u-1", "alice", "a@x.com")
	require.NoError(t, err)

	reached := false
	r := newGuardedEngine(jwt, &reached)

	// The header is used verbatim: no "Bearer " prefix handling.
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, reached)
	require.Contains(t, w.Body.String(), `"userID":"u-1"`)
	require.Contains(t, w.Body.String(), `"userName":"alice"`)
}

func TestAuthRejectsBearerPrefixedToken(t *testing.T) {
	jwt := helpers.NewJWTManager("access-secret", "refresh-secret", 15*time.Minute, 48*time.Hour)
	token, _, err := jwt.GenerateAccessToken("u-1", "alice", "a@x.com")
	require.NoError(t, err)

	reached := false
	r := newGuardedEngine(jwt, &reached)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	require.False(t, reached)
}
