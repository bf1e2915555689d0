package entity

import (
	"time"
)

// User is the aggregate root for the user domain. Passwords are stored as
// bcrypt hashes in PasswordHash; the plaintext never touches this struct.
//
// RefreshToken is nil unless the user has a live session. At most one refresh
// token is live per user: login overwrites it, logout clears it.
type User struct {
	ID           string
	Name         string
	Username     string
	Email        string
	PasswordHash string
	Phone        string
	PostalCode   string
	RefreshToken *string

	// Profile picture is stored inline; PictureURL is set when an object
	// storage mirror is configured.
	ProfilePicture []byte
	PictureType    string
	PictureURL     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPicture reports whether a profile picture has been uploaded.
func (u *User) HasPicture() bool {
	return len(u.ProfilePicture) > 0
}
