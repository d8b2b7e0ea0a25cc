package repository

import (
	"context"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
)

// UserRepository persists accounts. Lookups of missing users return an
// error matching apperrors.ErrNotFound; inserting a taken email returns one
// matching apperrors.ErrConflict.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// List returns one page of users matching filter, newest first, and the
	// total number of matches.
	List(ctx context.Context, filter domain.UserFilter, limit, offset int) ([]domain.User, int, error)

	// UpdateProfile writes FullName, Division and AvatarURL.
	UpdateProfile(ctx context.Context, user *domain.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetApproved(ctx context.Context, id string, approved bool) (*domain.User, error)
	SetRole(ctx context.Context, id string, role domain.Role) (*domain.User, error)
}

// RefreshTokenRepository is the storage behind the refresh token ledger.
// Tokens are addressed by their SHA-256 hex digest.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// Revoke marks the token revoked. Unknown and already revoked tokens are
	// not an error.
	Revoke(ctx context.Context, tokenHash string) error

	// Rotate atomically revokes the active token oldHash owned by userID and
	// inserts next. When oldHash is not active it changes nothing and returns
	// domain.ErrTokenRevoked.
	Rotate(ctx context.Context, oldHash, userID string, next *domain.RefreshToken) error

	// RevokeAllForUser revokes every active token of userID and returns how
	// many were revoked.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}
