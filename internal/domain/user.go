package domain

import (
	"errors"
	"strings"
	"time"
)

// User is an account. PasswordHash never leaves the service.
type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Approved     bool      `json:"approved"`
	Division     *string   `json:"division"`
	AvatarURL    *string   `json:"avatarUrl"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NormalizeEmail is applied before every store and lookup so uniqueness is
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserFilter narrows a user listing. Nil fields do not filter.
type UserFilter struct {
	Role     *Role
	Approved *bool
	Query    string
}

// RefreshToken is a ledger row. The token itself is never stored, only its
// SHA-256 digest.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	CreatedAt time.Time
}

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ErrTokenRevoked is returned when a refresh token is no longer active in
// the ledger: revoked, rotated, or never stored.
var ErrTokenRevoked = errors.New("refresh token revoked")
