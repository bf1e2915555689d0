package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nimbusbyte/user-auth-service/internal/application"
	"github.com/nimbusbyte/user-auth-service/internal/domain/entity"
	repo "github.com/nimbusbyte/user-auth-service/internal/domain/repository"
	handlers "github.com/nimbusbyte/user-auth-service/internal/interface/http"
	"github.com/nimbusbyte/user-auth-service/internal/router/modules"
	"github.com/nimbusbyte/user-auth-service/pkg/helpers"
	"github.com/nimbusbyte/user-auth-service/pkg/validation"
)

// ---- in-memory store ----

type memRepo struct {
	mu    sync.Mutex
	seq   int
	users map[string]*entity.User
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[string]*entity.User{}}
}

func cloneUser(u *entity.User) *entity.User {
	cp := *u
	if u.RefreshToken != nil {
		tok := *u.RefreshToken
		cp.RefreshToken = &tok
	}
	cp.ProfilePicture = append([]byte(nil), u.ProfilePicture...)
	return &cp
}

func (m *memRepo) Create(_ context.Context, u *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repo.ErrDuplicateEmail
		}
		if existing.Username == u.Username {
			return repo.ErrDuplicateUsername
		}
	}
	m.seq++
	u.ID = fmt.Sprintf("u-%d", m.seq)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, repo.ErrNotFound
}

func (m *memRepo) findBy(match func(*entity.User) bool) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memRepo) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	return m.findBy(func(u *entity.User) bool { return u.Email == email })
}

func (m *memRepo) GetByUsername(_ context.Context, username string) (*entity.User, error) {
	return m.findBy(func(u *entity.User) bool { return u.Username == username })
}

func (m *memRepo) GetByRefreshToken(_ context.Context, token string) (*entity.User, error) {
	return m.findBy(func(u *entity.User) bool { return u.RefreshToken != nil && *u.RefreshToken == token })
}

func (m *memRepo) SetRefreshToken(_ context.Context, userID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repo.ErrNotFound
	}
	u.RefreshToken = &token
	u.UpdatedAt = time.Now()
	return nil
}

func (m *memRepo) ClearRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.RefreshToken != nil && *u.RefreshToken == token {
			u.RefreshToken = nil
			u.UpdatedAt = time.Now()
			return nil
		}
	}
	return repo.ErrNotFound
}

func (m *memRepo) SetProfilePicture(_ context.Context, username string, data []byte, contentType, pictureURL string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			u.ProfilePicture = append([]byte(nil), data...)
			u.PictureType = contentType
			u.PictureURL = pictureURL
			u.UpdatedAt = time.Now()
			return cloneUser(u), nil
		}
	}
	return nil, repo.ErrNotFound
}

var _ repo.UserRepository = (*memRepo)(nil)

// ---- test server ----

type env struct {
	Status  int            `json:"status"`
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func setup(t *testing.T) (*gin.Engine, *memRepo, *helpers.JWTManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validation.Init()

	r := newMemRepo()
	jwt := helpers.NewJWTManager("access-secret", "refresh-secret", 15*time.Minute, 48*time.Hour)
	svc := &application.Service{Repo: r, JWT: jwt, HashCost: bcrypt.MinCost}
	h := handlers.NewUserHandler(svc, nil)

	engine := gin.New()
	modules.NewUserModule(h, jwt).Register(&engine.RouterGroup)
	return engine, r, jwt
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, env) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var e env
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return w, e
}

func registerBody() map[string]string {
	return map[string]string{
		"name":       "Alice",
		"username":   "alice",
		"email":      "a@x.com",
		"password":   "pw1234",
		"phone":      "+15550101",
		"postalCode": "12345",
	}
}

func registerAlice(t *testing.T, engine *gin.Engine) {
	t.Helper()
	w, _ := doJSON(t, engine, http.MethodPost, "/user/register", registerBody())
	require.Equal(t, http.StatusCreated, w.Code)
}

func loginAlice(t *testing.T, engine *gin.Engine) (access, refresh string) {
	t.Helper()
	w, e := doJSON(t, engine, http.MethodPost, "/user/login", map[string]string{
		"username": "alice", "password": "pw1234",
	})
	require.Equal(t, http.StatusOK, w.Code)
	access, _ = e.Data["accessToken"].(string)
	refresh, _ = e.Data["refreshToken"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	return access, refresh
}

// ---- tests ----

func TestRegisterEndpoint(t *testing.T) {
	engine, _, _ := setup(t)

	w, e := doJSON(t, engine, http.MethodPost, "/user/register", registerBody())
	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, e.Success)

	// Same username again: conflict regardless of the other fields.
	body := registerBody()
	body["email"] = "other@x.com"
	w, e = doJSON(t, engine, http.MethodPost, "/user/register", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "username already in use", e.Message)

	body = registerBody()
	body["username"] = "alice2"
	w, e = doJSON(t, engine, http.MethodPost, "/user/register", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "email already in use", e.Message)
}

func TestRegisterAcceptsShortPassword(t *testing.T) {
	engine, _, _ := setup(t)

	// The password check is presence-only; no minimum length is imposed.
	body := registerBody()
	body["password"] = "pw123"
	w, e := doJSON(t, engine, http.MethodPost, "/user/register", body)
	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, e.Success)

	w, _ = doJSON(t, engine, http.MethodPost, "/user/login", map[string]string{
		"username": "alice", "password": "pw123",
	})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterMissingFields(t *testing.T) {
	engine, _, _ := setup(t)

	body := registerBody()
	delete(body, "postalCode")
	w, e := doJSON(t, engine, http.MethodPost, "/user/register", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "some required fields are missing", e.Message)
}

func TestLoginEndpoint(t *testing.T) {
	engine, _, _ := setup(t)
	registerAlice(t, engine)

	w, e := doJSON(t, engine, http.MethodPost, "/user/login", map[string]string{
		"username": "alice", "password": "wrong",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid password", e.Message)

	w, e = doJSON(t, engine, http.MethodPost, "/user/login", map[string]string{
		"username": "nobody", "password": "pw1234",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "username does not exist", e.Message)

	w, _ = doJSON(t, engine, http.MethodPost, "/user/login", map[string]string{"username": "alice"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	loginAlice(t, engine)
}

func TestRefreshEndpoint(t *testing.T) {
	engine, _, jwt := setup(t)
	registerAlice(t, engine)
	_, refresh := loginAlice(t, engine)

	w, _ := doJSON(t, engine, http.MethodPost, "/user/refresh-token", map[string]string{})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, engine, http.MethodPost, "/user/refresh-token", map[string]string{"refreshToken": "bogus"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w, e := doJSON(t, engine, http.MethodPost, "/user/refresh-token", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, w.Code)
	access, _ := e.Data["accessToken"].(string)
	require.NotEmpty(t, access)

	claims, err := jwt.ParseAccessToken(access)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "a@x.com", claims.Email)
}

func TestLogoutEndpoint(t *testing.T) {
	engine, _, _ := setup(t)
	registerAlice(t, engine)
	_, refresh := loginAlice(t, engine)

	w, _ := doJSON(t, engine, http.MethodPost, "/user/logout", map[string]string{})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, engine, http.MethodPost, "/user/logout", map[string]string{"refreshToken": "bogus"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, engine, http.MethodPost, "/user/logout", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, w.Code)

	// The cleared token no longer refreshes.
	w, _ = doJSON(t, engine, http.MethodPost, "/user/refresh-token", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestProfilePageEndpoint(t *testing.T) {
	engine, r, _ := setup(t)
	registerAlice(t, engine)
	access, _ := loginAlice(t, engine)

	u, err := r.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)

	// No token: rejected before the handler runs.
	req := httptest.NewRequest(http.MethodGet, "/user/profile-page/"+u.ID, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/user/profile-page/"+u.ID, nil)
	req.Header.Set("Authorization", access)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var e env
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	user, ok := e.Data["user"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "alice", user["username"])
	_, leaked := user["passwordHash"]
	require.False(t, leaked, "password hash must never be serialized")

	req = httptest.NewRequest(http.MethodGet, "/user/profile-page/unknown-id", nil)
	req.Header.Set("Authorization", access)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func multipartUpload(t *testing.T, username, fieldContentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("username", username))

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="profilePicture"; filename="avatar"`)
	hdr.Set("Content-Type", fieldContentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadProfilePictureEndpoint(t *testing.T) {
	engine, r, _ := setup(t)
	registerAlice(t, engine)
	access, _ := loginAlice(t, engine)

	do := func(body *bytes.Buffer, contentType string, withAuth bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/user/upload-profile-picture", body)
		req.Header.Set("Content-Type", contentType)
		if withAuth {
			req.Header.Set("Authorization", access)
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	// Guarded route: no token, no upload.
	body, ct := multipartUpload(t, "alice", "image/png", []byte{1, 2, 3})
	require.Equal(t, http.StatusForbidden, do(body, ct, false).Code)

	// Non-image content type.
	body, ct = multipartUpload(t, "alice", "text/plain", []byte("hi"))
	require.Equal(t, http.StatusBadRequest, do(body, ct, true).Code)

	// Over the 5 MiB cap.
	big := bytes.Repeat([]byte{0xab}, handlers.MaxPictureBytes+1)
	body, ct = multipartUpload(t, "alice", "image/png", big)
	require.Equal(t, http.StatusBadRequest, do(body, ct, true).Code)

	// Missing file part.
	var noFile bytes.Buffer
	mw := multipart.NewWriter(&noFile)
	require.NoError(t, mw.WriteField("username", "alice"))
	require.NoError(t, mw.Close())
	require.Equal(t, http.StatusBadRequest, do(&noFile, mw.FormDataContentType(), true).Code)

	// Unknown user.
	body, ct = multipartUpload(t, "bob", "image/png", []byte{1, 2, 3})
	require.Equal(t, http.StatusNotFound, do(body, ct, true).Code)

	// Happy path overwrites the stored picture.
	body, ct = multipartUpload(t, "alice", "image/png", []byte{1, 2, 3})
	require.Equal(t, http.StatusOK, do(body, ct, true).Code)

	u, err := r.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, u.ProfilePicture)
	require.Equal(t, "image/png", u.PictureType)
}
