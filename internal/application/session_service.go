package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nimbusbyte/user-auth-service/internal/domain/entity"
	repo "github.com/nimbusbyte/user-auth-service/internal/domain/repository"
	"github.com/nimbusbyte/user-auth-service/pkg/helpers"
	"github.com/nimbusbyte/user-auth-service/pkg/mailer"
	mailtpl "github.com/nimbusbyte/user-auth-service/pkg/mailer/templates"
)

var (
	ErrUnknownUser     = errors.New("username does not exist")
	ErrInvalidPassword = errors.New("invalid password")
	ErrUnknownToken    = errors.New("unknown refresh token")
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrUserNotFound    = errors.New("user not found")
)

// Service orchestrates the session lifecycle: register, login, refresh and
// logout, plus the profile reads and picture upload that hang off the same
// user record. Redis, GCS, Elasticsearch and the mail queue are optional side
// channels; a nil client skips the concern.
type Service struct {
	Repo         repo.UserRepository
	JWT          *helpers.JWTManager
	HashCost     int
	Redis        *redis.Client
	Logger       *logrus.Logger
	Pub          *helpers.RabbitPublisher
	MailEnabled  bool
	GCS          *storage.Client
	GCSBucket    string
	ES           *elasticsearch.Client
	ESUsersIndex string
}

type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

// Profile is the externally visible projection of a user record. The password
// hash and the raw picture bytes never leave through it.
type Profile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	PostalCode  string    `json:"postalCode"`
	HasPicture  bool      `json:"hasPicture"`
	PictureType string    `json:"pictureType,omitempty"`
	PictureURL  string    `json:"pictureUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func NewProfile(u *entity.User) *Profile {
	return &Profile{
		ID:          u.ID,
		Name:        u.Name,
		Username:    u.Username,
		Email:       u.Email,
		Phone:       u.Phone,
		PostalCode:  u.PostalCode,
		HasPicture:  u.HasPicture(),
		PictureType: u.PictureType,
		PictureURL:  u.PictureURL,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func profileKey(userID string) string {
	return "user:profile:" + userID
}

const profileCacheTTL = 5 * time.Minute

type RegisterInput struct {
	Name       string
	Username   string
	Email      string
	Password   string
	Phone      string
	PostalCode string
}

// Register creates a new user record. Email uniqueness is checked before
// username so the caller always sees the email conflict first; the store's
// unique indexes remain the authoritative check under concurrent registers.
// Registration does not imply login: no tokens are issued here.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	if _, err := s.Repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, repo.ErrDuplicateEmail
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if _, err := s.Repo.GetByUsername(ctx, in.Username); err == nil {
		return nil, repo.ErrDuplicateUsername
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	hash, err := helpers.HashPassword(in.Password, s.HashCost)
	if err != nil {
		return nil, err
	}

	u := &entity.User{
		Name:         in.Name,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Phone:        in.Phone,
		PostalCode:   in.PostalCode,
	}
	if err := s.Repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.enqueueWelcomeEmail(ctx, u)
	_ = s.indexUser(ctx, u)

	return u, nil
}

// Login verifies the credentials and issues a fresh token pair. The refresh
// token is persisted on the user record, overwriting any prior value, so an
// earlier session's refresh token stops validating immediately.
func (s *Service) Login(ctx context.Context, username, password string) (*entity.User, TokenPair, error) {
	u, err := s.Repo.GetByUsername(ctx, username)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, TokenPair{}, ErrUnknownUser
	}
	if err != nil {
		return nil, TokenPair{}, err
	}
	if !helpers.CompareHashAndPassword(u.PasswordHash, password) {
		return nil, TokenPair{}, ErrInvalidPassword
	}

	access, aexp, err := s.JWT.GenerateAccessToken(u.ID, u.Username, u.Email)
	if err != nil {
		s.logError(err, logrus.Fields{"user_id": u.ID}, "generate access token failed")
		return nil, TokenPair{}, err
	}
	refresh, rexp, err := s.JWT.GenerateRefreshToken(u.ID, u.Username, u.Email)
	if err != nil {
		s.logError(err, logrus.Fields{"user_id": u.ID}, "generate refresh token failed")
		return nil, TokenPair{}, err
	}

	if err := s.Repo.SetRefreshToken(ctx, u.ID, refresh); err != nil {
		return nil, TokenPair{}, err
	}

	return u, TokenPair{
		AccessToken:        access,
		AccessTokenExpiry:  aexp,
		RefreshToken:       refresh,
		RefreshTokenExpiry: rexp,
	}, nil
}

// Refresh exchanges a live refresh token for a new access token. The stored
// token must match first (revocation check), then the token itself must carry
// a valid signature and expiry. The refresh token is not rotated here; it
// stays valid until logout or natural expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	if _, err := s.Repo.GetByRefreshToken(ctx, refreshToken); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", time.Time{}, ErrUnknownToken
		}
		return "", time.Time{}, err
	}

	claims, err := s.JWT.ParseRefreshToken(refreshToken)
	if err != nil {
		return "", time.Time{}, ErrInvalidToken
	}

	// The new access token is bound to the payload recovered from the
	// refresh token, not to a fresh store read.
	access, exp, err := s.JWT.GenerateAccessToken(claims.UserID, claims.Username, claims.Email)
	if err != nil {
		return "", time.Time{}, err
	}
	return access, exp, nil
}

// Logout clears the stored refresh token matching the given value. A token
// that was never stored (or already cleared) reports ErrUnknownToken.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	err := s.Repo.ClearRefreshToken(ctx, refreshToken)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUnknownToken
	}
	return err
}

// GetProfile returns the public projection of a user, served from the redis
// cache when possible.
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if s.Redis != nil {
		var cached Profile
		if ok, err := helpers.RedisGetJSON(ctx, s.Redis, profileKey(userID), &cached); err == nil && ok {
			return &cached, nil
		}
	}

	u, err := s.Repo.GetByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	p := NewProfile(u)
	if s.Redis != nil {
		if err := helpers.RedisSetJSON(ctx, s.Redis, profileKey(userID), p, profileCacheTTL); err != nil {
			s.logError(err, logrus.Fields{"user_id": userID}, "profile cache write failed")
		}
	}
	return p, nil
}

// UploadProfilePicture stores the picture bytes on the record of the user with
// the given username, overwriting any prior picture. When a GCS bucket is
// configured the bytes are also mirrored there and the public URL recorded.
func (s *Service) UploadProfilePicture(ctx context.Context, username string, data []byte, contentType string) (*entity.User, error) {
	pictureURL := ""
	if s.GCS != nil && s.GCSBucket != "" {
		objectPath := "profile-pictures/" + username
		url, err := helpers.UploadObject(ctx, s.GCS, s.GCSBucket, objectPath, contentType, bytes.NewReader(data))
		if err != nil {
			s.logError(err, logrus.Fields{"username": username}, "gcs mirror failed")
		} else {
			pictureURL = url
		}
	}

	u, err := s.Repo.SetProfilePicture(ctx, username, data, contentType, pictureURL)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if s.Redis != nil {
		_ = helpers.RedisDel(ctx, s.Redis, profileKey(u.ID))
	}
	_ = s.indexUser(ctx, u)

	return u, nil
}

func (s *Service) enqueueWelcomeEmail(ctx context.Context, u *entity.User) {
	if s.Pub == nil || !s.MailEnabled {
		return
	}
	job := mailer.EmailJob{
		To:       u.Email,
		Template: mailtpl.TemplateWelcome,
		Data:     map[string]any{"Name": u.Name, "Username": u.Username},
	}
	if err := s.Pub.PublishJSON(ctx, job); err != nil {
		s.logError(err, logrus.Fields{"user_id": u.ID}, "welcome email enqueue failed")
	}
}

func (s *Service) indexUser(ctx context.Context, u *entity.User) error {
	if s.ES == nil || s.ESUsersIndex == "" {
		return nil
	}
	doc := map[string]any{
		"id":          u.ID,
		"name":        u.Name,
		"username":    u.Username,
		"email":       u.Email,
		"has_picture": u.HasPicture(),
		"created_at":  u.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  u.UpdatedAt.Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{Index: s.ESUsersIndex, DocumentID: u.ID, Body: strings.NewReader(string(b)), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		s.logError(err, logrus.Fields{"user_id": u.ID}, "es index failed")
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && s.Logger != nil {
		s.Logger.WithField("status", res.Status()).WithField("user_id", u.ID).Warn("es index response error")
	}
	return nil
}

// SearchUsers performs a simple multi_match search on name, username and email.
func (s *Service) SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"username^2", "email^2", "name"},
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.ES.Search(
		s.ES.Search.WithContext(c),
		s.ES.Search.WithIndex(s.ESUsersIndex),
		s.ES.Search.WithBody(strings.NewReader(string(b))),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

func (s *Service) logError(err error, fields logrus.Fields, msg string) {
	if s.Logger == nil {
		return
	}
	s.Logger.WithError(err).WithFields(fields).Error(msg)
}
