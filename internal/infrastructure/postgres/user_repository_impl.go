package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbusbyte/user-auth-service/internal/domain/entity"
	"github.com/nimbusbyte/user-auth-service/internal/domain/repository"
)

const uniqueViolation = "23505"

const userColumns = `id, name, username, email, password_hash, phone, postal_code,
	refresh_token, profile_picture, COALESCE(picture_content_type, ''), COALESCE(picture_url, ''),
	created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (name, username, email, password_hash, phone, postal_code)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, u.Name, u.Username, u.Email, u.PasswordHash, u.Phone, u.PostalCode)

	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

// mapUniqueViolation turns a unique-index violation into the matching domain
// error. The index is the authoritative duplicate check: a concurrent register
// that slipped past the service's pre-checks still lands here.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "users_email_key":
			return repository.ErrDuplicateEmail
		case "users_username_key":
			return repository.ErrDuplicateUsername
		}
	}
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *UserRepository) GetByRefreshToken(ctx context.Context, token string) (*entity.User, error) {
	return r.getBy(ctx, "refresh_token", token)
}

func (r *UserRepository) getBy(ctx context.Context, column, value string) (*entity.User, error) {
	u := &entity.User{}
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE `+column+` = $1
	`, value)

	if err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.PasswordHash,
		&u.Phone, &u.PostalCode, &u.RefreshToken, &u.ProfilePicture,
		&u.PictureType, &u.PictureURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) SetRefreshToken(ctx context.Context, userID, token string) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE users
		SET refresh_token = $1, updated_at = now()
		WHERE id = $2
	`, token, userID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) ClearRefreshToken(ctx context.Context, token string) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE users
		SET refresh_token = NULL, updated_at = now()
		WHERE refresh_token = $1
	`, token)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) SetProfilePicture(ctx context.Context, username string, data []byte, contentType, pictureURL string) (*entity.User, error) {
	u := &entity.User{}
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET profile_picture = $1, picture_content_type = $2, picture_url = NULLIF($3, ''), updated_at = now()
		WHERE username = $4
		RETURNING `+userColumns+`
	`, data, contentType, pictureURL, username)

	if err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.PasswordHash,
		&u.Phone, &u.PostalCode, &u.RefreshToken, &u.ProfilePicture,
		&u.PictureType, &u.PictureURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
