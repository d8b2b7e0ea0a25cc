package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/repository"
	apperrors "github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/errors"
)

// HashToken returns the hex SHA-256 digest under which a refresh token is
// stored. Raw tokens are never persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Ledger tracks issued refresh tokens so they can be revoked and rotated.
type Ledger struct {
	store  repository.RefreshTokenRepository
	signer *TokenSigner
	now    func() time.Time
}

func NewLedger(store repository.RefreshTokenRepository, signer *TokenSigner) *Ledger {
	return &Ledger{store: store, signer: signer, now: time.Now}
}

func (l *Ledger) record(userID, token string) (*domain.RefreshToken, error) {
	exp, err := l.signer.ExpiresAt(token)
	if err != nil {
		return nil, err
	}
	return &domain.RefreshToken{
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: exp,
	}, nil
}

// Store records a freshly issued refresh token for userID.
func (l *Ledger) Store(ctx context.Context, userID, token string) error {
	rec, err := l.record(userID, token)
	if err != nil {
		return err
	}
	if err := l.store.Create(ctx, rec); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// IsRevoked reports whether token may no longer be used. Unknown and expired
// tokens count as revoked. Storage failures are returned alongside true.
func (l *Ledger) IsRevoked(ctx context.Context, token string) (bool, error) {
	rec, err := l.store.GetByHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return true, nil
		}
		return true, fmt.Errorf("lookup refresh token: %w", err)
	}
	return rec.Revoked || !l.now().Before(rec.ExpiresAt), nil
}

// Revoke marks token revoked. Revoking an unknown token is a no-op.
func (l *Ledger) Revoke(ctx context.Context, token string) error {
	if err := l.store.Revoke(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// Rotate revokes oldToken and issues a replacement for userID in one step.
// If oldToken was already spent, nothing is issued and the returned error
// matches domain.ErrTokenRevoked.
func (l *Ledger) Rotate(ctx context.Context, userID, oldToken string) (string, error) {
	next, err := l.signer.SignRefresh(userID)
	if err != nil {
		return "", err
	}
	rec, err := l.record(userID, next)
	if err != nil {
		return "", err
	}
	if err := l.store.Rotate(ctx, HashToken(oldToken), userID, rec); err != nil {
		return "", fmt.Errorf("rotate refresh token: %w", err)
	}
	return next, nil
}

// RevokeAllForUser revokes every active refresh token of userID.
func (l *Ledger) RevokeAllForUser(ctx context.Context, userID string) error {
	if _, err := l.store.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}
