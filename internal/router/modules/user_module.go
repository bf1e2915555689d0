package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/nimbusbyte/user-auth-service/internal/interface/http"
	"github.com/nimbusbyte/user-auth-service/internal/interface/middleware"
	"github.com/nimbusbyte/user-auth-service/pkg/helpers"
)

// UserModule wires the user HTTP handlers and the authorization guard into
// routes under /user.
//
// Public:    POST /user/register, /user/login, /user/refresh-token, /user/logout
// Protected: POST /user/upload-profile-picture, GET /user/profile-page/:id,
//            GET /user/search
type UserModule struct {
	Handler *handlers.UserHandler
	JWT     *helpers.JWTManager
}

func NewUserModule(h *handlers.UserHandler, jwt *helpers.JWTManager) *UserModule {
	return &UserModule{Handler: h, JWT: jwt}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	user := rg.Group("/user")

	user.POST("/register", m.Handler.Register)
	user.POST("/login", m.Handler.Login)
	user.POST("/refresh-token", m.Handler.Refresh)
	user.POST("/logout", m.Handler.Logout)

	// Everything touching an existing profile sits behind the guard.
	auth := user.Group("/")
	auth.Use(middleware.Auth(m.JWT))
	{
		auth.POST("/upload-profile-picture", m.Handler.UploadProfilePicture)
		auth.GET("/profile-page/:id", m.Handler.ProfilePage)
		auth.GET("/search", m.Handler.Search)
	}
}
