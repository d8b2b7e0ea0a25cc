package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/database"
	apperrors "github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/errors"
)

const (
	insertTokenQuery = `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, false, $5)`

	revokeActiveTokenQuery = `
		UPDATE refresh_tokens SET revoked = true, revoked_at = $1
		WHERE token_hash = $2 AND user_id = $3 AND revoked = false`
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RefreshTokenRepository implements repository.RefreshTokenRepository using
// PostgreSQL.
type RefreshTokenRepository struct {
	db database.DBTX
}

func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func insertToken(ctx context.Context, db execer, t *domain.RefreshToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()

	ctx, done := database.TraceQuery(ctx, "insert_refresh_token", insertTokenQuery)
	_, err := db.Exec(ctx, insertTokenQuery, t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	done(err)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Create inserts an active token.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	return insertToken(ctx, r.db, t)
}

func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked, revoked_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1`

	var t domain.RefreshToken
	ctx, done := database.TraceQuery(ctx, "get_refresh_token", query)
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.ExpiresAt,
		&t.Revoked,
		&t.RevokedAt,
		&t.CreatedAt,
	)
	done(err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("refresh token", "")
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return &t, nil
}

func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	query := `UPDATE refresh_tokens SET revoked = true, revoked_at = $1 WHERE token_hash = $2 AND revoked = false`

	ctx, done := database.TraceQuery(ctx, "revoke_refresh_token", query)
	_, err := r.db.Exec(ctx, query, time.Now().UTC(), tokenHash)
	done(err)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// Rotate revokes oldHash and inserts next in one transaction. The revoke is
// conditional on the row still being active, so of two concurrent rotations
// of one token only the first to update commits.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldHash, userID string, next *domain.RefreshToken) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotate: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, revokeActiveTokenQuery, time.Now().UTC(), oldHash, userID)
	if err != nil {
		return fmt.Errorf("revoke rotated token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrTokenRevoked
	}

	if err := insertToken(ctx, tx, next); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotate: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked = true, revoked_at = $1 WHERE user_id = $2 AND revoked = false`

	ctx, done := database.TraceQuery(ctx, "revoke_user_refresh_tokens", query)
	ct, err := r.db.Exec(ctx, query, time.Now().UTC(), userID)
	done(err)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}
