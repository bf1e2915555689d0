package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nimbusbyte/user-auth-service/internal/application"
	repo "github.com/nimbusbyte/user-auth-service/internal/domain/repository"
	"github.com/nimbusbyte/user-auth-service/pkg/response"
	"github.com/nimbusbyte/user-auth-service/pkg/validation"
)

// MaxPictureBytes caps profile picture uploads at 5 MiB.
const MaxPictureBytes = 5 << 20

type UserHandler struct {
	Svc    *application.Service
	Logger *logrus.Logger
}

func NewUserHandler(svc *application.Service, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

type registerRequest struct {
	Name       string `json:"name" binding:"required"`
	Username   string `json:"username" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	Phone      string `json:"phone" binding:"required"`
	PostalCode string `json:"postalCode" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Register creates a new account. Registration never issues tokens; the
// caller has to log in afterwards.
func (h *UserHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "some required fields are missing", validation.ToDetails(err))
		return
	}

	_, err := h.Svc.Register(c.Request.Context(), application.RegisterInput{
		Name:       req.Name,
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		Phone:      req.Phone,
		PostalCode: req.PostalCode,
	})
	switch {
	case errors.Is(err, repo.ErrDuplicateEmail):
		response.Error[any](c, http.StatusBadRequest, "email already in use", nil)
	case errors.Is(err, repo.ErrDuplicateUsername):
		response.Error[any](c, http.StatusBadRequest, "username already in use", nil)
	case err != nil:
		h.serverError(c, err, "register failed")
	default:
		response.Success[any](c, http.StatusCreated, nil, "user registered successfully", nil)
	}
}

// Login verifies credentials and returns both tokens.
func (h *UserHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "some required fields are missing", validation.ToDetails(err))
		return
	}

	_, pair, err := h.Svc.Login(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, application.ErrUnknownUser):
		response.Error[any](c, http.StatusBadRequest, "username does not exist", nil)
	case errors.Is(err, application.ErrInvalidPassword):
		response.Error[any](c, http.StatusBadRequest, "invalid password", nil)
	case err != nil:
		h.serverError(c, err, "login failed")
	default:
		response.Success(c, http.StatusOK, gin.H{
			"accessToken":  pair.AccessToken,
			"refreshToken": pair.RefreshToken,
		}, "login successful", gin.H{
			"access_expires_at":  pair.AccessTokenExpiry,
			"refresh_expires_at": pair.RefreshTokenExpiry,
		})
	}
}

// Refresh exchanges a live refresh token for a new access token.
func (h *UserHandler) Refresh(c *gin.Context) {
	var req refreshTokenRequest
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" {
		response.Error[any](c, http.StatusUnauthorized, "refresh token is required", nil)
		return
	}

	access, exp, err := h.Svc.Refresh(c.Request.Context(), req.RefreshToken)
	switch {
	case errors.Is(err, application.ErrUnknownToken):
		response.Error[any](c, http.StatusForbidden, "invalid refresh token", nil)
	case errors.Is(err, application.ErrInvalidToken):
		response.Error[any](c, http.StatusForbidden, "invalid or expired refresh token", nil)
	case err != nil:
		h.serverError(c, err, "refresh failed")
	default:
		response.Success(c, http.StatusOK, gin.H{"accessToken": access}, "token refreshed", gin.H{"access_expires_at": exp})
	}
}

// Logout invalidates the session holding the given refresh token.
func (h *UserHandler) Logout(c *gin.Context) {
	var req refreshTokenRequest
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" {
		response.Error[any](c, http.StatusUnauthorized, "refresh token is required", nil)
		return
	}

	err := h.Svc.Logout(c.Request.Context(), req.RefreshToken)
	switch {
	case errors.Is(err, application.ErrUnknownToken):
		response.Error[any](c, http.StatusBadRequest, "invalid refresh token", nil)
	case err != nil:
		h.serverError(c, err, "logout failed")
	default:
		response.Success[any](c, http.StatusOK, nil, "logout successful", nil)
	}
}

// UploadProfilePicture accepts a multipart image of at most 5 MiB and stores
// it on the record of the user named in the form.
func (h *UserHandler) UploadProfilePicture(c *gin.Context) {
	username := c.PostForm("username")
	if username == "" {
		response.Error[any](c, http.StatusBadRequest, "some required fields are missing", gin.H{"username": "is required"})
		return
	}

	fh, err := c.FormFile("profilePicture")
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "file not uploaded", nil)
		return
	}
	if fh.Size > MaxPictureBytes {
		response.Error[any](c, http.StatusBadRequest, "file exceeds the 5MiB limit", nil)
		return
	}
	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		response.Error[any](c, http.StatusBadRequest, "only image uploads are allowed", nil)
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.serverError(c, err, "open upload failed")
		return
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, MaxPictureBytes+1))
	if err != nil {
		h.serverError(c, err, "read upload failed")
		return
	}
	if len(data) > MaxPictureBytes {
		response.Error[any](c, http.StatusBadRequest, "file exceeds the 5MiB limit", nil)
		return
	}

	u, err := h.Svc.UploadProfilePicture(c.Request.Context(), username, data, contentType)
	switch {
	case errors.Is(err, application.ErrUserNotFound):
		response.Error[any](c, http.StatusNotFound, "user not found", nil)
	case err != nil:
		h.serverError(c, err, "upload profile picture failed")
	default:
		response.Success(c, http.StatusOK, gin.H{"user": application.NewProfile(u)}, "profile picture updated successfully", nil)
	}
}

// ProfilePage returns the public profile of the user with the given id.
func (h *UserHandler) ProfilePage(c *gin.Context) {
	id := c.Param("id")
	p, err := h.Svc.GetProfile(c.Request.Context(), id)
	switch {
	case errors.Is(err, application.ErrUserNotFound):
		response.Error[any](c, http.StatusNotFound, "user not found", nil)
	case err != nil:
		h.serverError(c, err, "profile lookup failed")
	default:
		response.Success(c, http.StatusOK, gin.H{"user": p}, "profile", nil)
	}
}

// Search queries the user index.
func (h *UserHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		response.Error[any](c, http.StatusBadRequest, "query is required", nil)
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))

	hits, err := h.Svc.SearchUsers(c.Request.Context(), q, size)
	if err != nil {
		h.serverError(c, err, "user search failed")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"hits": hits}, "search results", gin.H{"count": len(hits)})
}

// serverError hides store/internal error detail from the client; the cause is
// only logged.
func (h *UserHandler) serverError(c *gin.Context, err error, msg string) {
	if h.Logger != nil {
		h.Logger.WithError(err).WithField("request_id", c.GetString("request_id")).Error(msg)
	}
	response.Error[any](c, http.StatusInternalServerError, "server error", nil)
}
