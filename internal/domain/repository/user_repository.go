package repository

import (
	"context"
	"errors"

	"github.com/nimbusbyte/user-auth-service/internal/domain/entity"
)

// Absence of a record is a normal result, reported as ErrNotFound and distinct
// from a store failure. Duplicate errors are raised by the store's own unique
// constraints at Create time, which makes them authoritative even under
// concurrent registrations.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEmail    = errors.New("email already in use")
	ErrDuplicateUsername = errors.New("username already in use")
)

// UserRepository defines the persistence contract for user records.
// All operations are atomic per record; no multi-record transactions exist.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	GetByRefreshToken(ctx context.Context, token string) (*entity.User, error)

	// SetRefreshToken overwrites the stored refresh token for the user,
	// invalidating any previous session.
	SetRefreshToken(ctx context.Context, userID, token string) error

	// ClearRefreshToken nulls the stored token matching the given value and
	// reports ErrNotFound when no record held it.
	ClearRefreshToken(ctx context.Context, token string) error

	// SetProfilePicture replaces the picture for the user with the given
	// username and returns the updated record.
	SetProfilePicture(ctx context.Context, username string, data []byte, contentType, pictureURL string) (*entity.User, error)
}
