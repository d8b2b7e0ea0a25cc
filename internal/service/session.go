package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/auth"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/event"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/repository"
	apperrors "github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/errors"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/validator"
)

const (
	msgInvalidCredentials = "invalid email or password"
	msgInvalidRefresh     = "invalid or expired refresh token"
	msgPendingApproval    = "account pending approval"
)

// SessionService registers accounts and issues, rotates and revokes
// sessions.
type SessionService struct {
	users  repository.UserRepository
	hasher *auth.PasswordHasher
	signer *auth.TokenSigner
	ledger *auth.Ledger
	events event.Publisher
	logger *slog.Logger
}

func NewSessionService(
	users repository.UserRepository,
	hasher *auth.PasswordHasher,
	signer *auth.TokenSigner,
	ledger *auth.Ledger,
	events event.Publisher,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		users:  users,
		hasher: hasher,
		signer: signer,
		ledger: ledger,
		events: events,
		logger: logger,
	}
}

// RegisterInput holds the parameters for registering a new account. Role
// and Division are optional.
type RegisterInput struct {
	FullName string
	Email    string
	Password string
	Role     string
	Division *string
}

// LoginInput holds the parameters for login.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *domain.User `json:"user"`
}

func (in RegisterInput) validate() (domain.Role, error) {
	fields := make(map[string]string)
	if strings.TrimSpace(in.FullName) == "" {
		fields["fullName"] = "is required"
	}
	if in.Email == "" {
		fields["email"] = "is required"
	}
	if msg := passwordProblem(in.Password); msg != "" {
		fields["password"] = msg
	}

	role := domain.DefaultRole
	if in.Role != "" {
		parsed, ok := domain.ParseRole(in.Role)
		if !ok {
			fields["role"] = "must be one of: ADMIN OFFICER ANALYST"
		}
		role = parsed
	}

	if len(fields) > 0 {
		return "", apperrors.ValidationFields("request validation failed", fields)
	}
	return role, nil
}

// Register creates an account awaiting approval.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Email = domain.NormalizeEmail(in.Email)
	role, err := in.validate()
	if err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		recordAttempt("register", outcomeFailed)
		return nil, apperrors.Conflict("email already registered")
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		FullName:     strings.TrimSpace(in.FullName),
		Email:        in.Email,
		PasswordHash: digest,
		Role:         role,
		Approved:     false,
		Division:     nonEmpty(in.Division),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			recordAttempt("register", outcomeFailed)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	recordAttempt("register", outcomeSuccess)

	if err := s.events.UserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role.String()),
	)
	return user, nil
}

// Login checks credentials and issues a session. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.hasher.Spend(in.Password)
			recordAttempt("login", outcomeFailed)
			return nil, apperrors.AuthFailed(msgInvalidCredentials)
		}
		recordAttempt("login", outcomeError)
		return nil, fmt.Errorf("get user for login: %w", err)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		recordAttempt("login", outcomeFailed)
		s.logger.InfoContext(ctx, "login rejected", slog.String("user_id", user.ID))
		return nil, apperrors.AuthFailed(msgInvalidCredentials)
	}

	if !user.Approved {
		recordAttempt("login", outcomeForbidden)
		return nil, apperrors.Forbidden(msgPendingApproval)
	}

	pair, err := s.issue(ctx, user)
	if err != nil {
		recordAttempt("login", outcomeError)
		return nil, err
	}
	recordAttempt("login", outcomeSuccess)

	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))
	return &LoginResult{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, User: user}, nil
}

func (s *SessionService) issue(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	access, err := s.signer.SignAccess(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.signer.SignRefresh(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Store(ctx, user.ID, refresh); err != nil {
		return nil, err
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// spent: presenting it again fails.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.signer.VerifyRefresh(refreshToken)
	if err != nil {
		recordAttempt("refresh", outcomeFailed)
		return nil, apperrors.AuthFailed(msgInvalidRefresh)
	}

	revoked, err := s.ledger.IsRevoked(ctx, refreshToken)
	if err != nil {
		recordAttempt("refresh", outcomeError)
		return nil, err
	}
	if revoked {
		recordAttempt("refresh", outcomeFailed)
		s.logger.WarnContext(ctx, "revoked refresh token presented", slog.String("user_id", claims.UserID))
		return nil, apperrors.AuthFailed("refresh token has been revoked")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			recordAttempt("refresh", outcomeFailed)
			return nil, apperrors.AuthFailed(msgInvalidRefresh)
		}
		recordAttempt("refresh", outcomeError)
		return nil, fmt.Errorf("get user for refresh: %w", err)
	}
	if !user.Approved {
		recordAttempt("refresh", outcomeForbidden)
		return nil, apperrors.Forbidden(msgPendingApproval)
	}

	next, err := s.ledger.Rotate(ctx, user.ID, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrTokenRevoked) {
			recordAttempt("refresh", outcomeFailed)
			return nil, apperrors.AuthFailed("refresh token has been revoked")
		}
		recordAttempt("refresh", outcomeError)
		return nil, err
	}

	access, err := s.signer.SignAccess(user)
	if err != nil {
		recordAttempt("refresh", outcomeError)
		return nil, err
	}
	recordAttempt("refresh", outcomeSuccess)

	s.logger.InfoContext(ctx, "tokens refreshed", slog.String("user_id", user.ID))
	return &domain.TokenPair{AccessToken: access, RefreshToken: next}, nil
}

// Logout revokes refreshToken if the ledger knows it. It never fails.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	if err := s.ledger.Revoke(ctx, refreshToken); err != nil {
		s.logger.WarnContext(ctx, "logout could not revoke refresh token", slog.String("error", err.Error()))
	}
}

// ChangePassword replaces the password of userID and revokes all of their
// refresh tokens.
func (s *SessionService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user for password change: %w", err)
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return apperrors.AuthFailed("current password is incorrect")
	}
	if msg := passwordProblem(next); msg != "" {
		return apperrors.ValidationFields("request validation failed", map[string]string{"newPassword": msg})
	}

	digest, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, digest); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.ledger.RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}

	if err := s.events.PasswordChanged(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.password_changed event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password changed", slog.String("user_id", user.ID))
	return nil
}

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

func passwordProblem(p string) string {
	if len(p) > maxPasswordBytes {
		return fmt.Sprintf("must be at most %d bytes", maxPasswordBytes)
	}
	if !validator.StrongPassword(p) {
		return fmt.Sprintf("must be at least %d characters and contain an uppercase letter, a lowercase letter and a digit", validator.MinPasswordLength)
	}
	return ""
}

// nonEmpty trims s and maps blank values to nil.
func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
