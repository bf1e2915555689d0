package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nimbusbyte/user-auth-service/pkg/helpers"
	"github.com/nimbusbyte/user-auth-service/pkg/response"
)

// Context keys populated by Auth on success.
const (
	CtxUserIDKey   = "userID"
	CtxUsernameKey = "userName"
	CtxEmailKey    = "userEmail"
)

// Auth is the authorization guard for protected routes. It reads the
// authorization header verbatim (no "Bearer " prefix handling), validates it
// as an access token, and injects the verified identity into the Gin context.
// It is stateless: no store is consulted.
func Auth(jwt *helpers.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			response.Abort(c, http.StatusForbidden, "access denied, no token provided", nil)
			return
		}
		claims, err := jwt.ParseAccessToken(token)
		if err != nil {
			response.Abort(c, http.StatusForbidden, "invalid token", nil)
			return
		}
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxUsernameKey, claims.Username)
		c.Set(CtxEmailKey, claims.Email)
		c.Next()
	}
}
