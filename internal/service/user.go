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
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/pagination"
)

// UserService implements account self-service and administration.
type UserService struct {
	users    repository.UserRepository
	sessions *SessionService
	ledger   *auth.Ledger
	events   event.Publisher
	logger   *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	sessions *SessionService,
	ledger *auth.Ledger,
	events event.Publisher,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:    users,
		sessions: sessions,
		ledger:   ledger,
		events:   events,
		logger:   logger,
	}
}

// UpdateProfileInput holds a partial profile update. Nil fields are left
// unchanged; an empty Division or AvatarURL clears it. CurrentPassword and
// NewPassword must be given together.
type UpdateProfileInput struct {
	FullName        *string
	Division        *string
	AvatarURL       *string
	CurrentPassword string
	NewPassword     string
}

func (in UpdateProfileInput) changesProfile() bool {
	return in.FullName != nil || in.Division != nil || in.AvatarURL != nil
}

// Me returns the caller's account.
func (s *UserService) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return user, nil
}

// Authorize re-reads userID and checks that the account is still approved
// and that its current role grants c. A demoted or unapproved caller loses
// access here even while their access token is still valid.
func (s *UserService) Authorize(ctx context.Context, userID string, c domain.Capability) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.AuthFailed("account no longer exists")
		}
		return nil, fmt.Errorf("get caller: %w", err)
	}
	if !user.Approved {
		s.logger.WarnContext(ctx, "unapproved caller rejected", slog.String("user_id", user.ID))
		return nil, apperrors.Forbidden(msgPendingApproval)
	}
	if !user.Role.Can(c) {
		s.logger.WarnContext(ctx, "caller lacks capability",
			slog.String("user_id", user.ID),
			slog.String("role", user.Role.String()),
			slog.String("capability", string(c)),
		)
		return nil, apperrors.Forbidden("insufficient permissions")
	}
	return user, nil
}

// UpdateMe applies a profile update for userID. A password change runs first
// and revokes every session of the user.
func (s *UserService) UpdateMe(ctx context.Context, userID string, in UpdateProfileInput) (*domain.User, error) {
	if (in.CurrentPassword == "") != (in.NewPassword == "") {
		return nil, apperrors.ValidationFields("request validation failed", map[string]string{
			"currentPassword": "currentPassword and newPassword must be provided together",
		})
	}
	if in.FullName != nil && strings.TrimSpace(*in.FullName) == "" {
		return nil, apperrors.ValidationFields("request validation failed", map[string]string{
			"fullName": "must not be empty",
		})
	}

	if in.NewPassword != "" {
		if err := s.sessions.ChangePassword(ctx, userID, in.CurrentPassword, in.NewPassword); err != nil {
			return nil, err
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	if !in.changesProfile() {
		return user, nil
	}

	if in.FullName != nil {
		user.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Division != nil {
		user.Division = nonEmpty(in.Division)
	}
	if in.AvatarURL != nil {
		user.AvatarURL = nonEmpty(in.AvatarURL)
	}
	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	s.logger.InfoContext(ctx, "profile updated", slog.String("user_id", user.ID))
	return user, nil
}

// List returns one page of accounts matching filter.
func (s *UserService) List(ctx context.Context, filter domain.UserFilter, params pagination.Params) ([]domain.User, int, error) {
	users, total, err := s.users.List(ctx, filter, params.PageSize, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// Approve sets the approval flag of userID. Withdrawing approval also ends
// every session of the user. Administrators cannot withdraw their own
// approval.
func (s *UserService) Approve(ctx context.Context, actorID, userID string, approved bool) (*domain.User, error) {
	if actorID == userID && !approved {
		return nil, apperrors.Validation("cannot revoke your own approval")
	}

	user, err := s.users.SetApproved(ctx, userID, approved)
	if err != nil {
		return nil, fmt.Errorf("set approval: %w", err)
	}
	if !approved {
		if err := s.ledger.RevokeAllForUser(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	if err := s.events.ApprovalChanged(ctx, user, actorID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.approval_changed event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "approval changed",
		slog.String("user_id", user.ID),
		slog.Bool("approved", approved),
		slog.String("actor_id", actorID),
	)
	return user, nil
}

// ChangeRole assigns role to userID. Administrators cannot change their own
// role.
func (s *UserService) ChangeRole(ctx context.Context, actorID, userID string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, apperrors.ValidationFields("request validation failed", map[string]string{
			"role": "must be one of: ADMIN OFFICER ANALYST",
		})
	}
	if actorID == userID {
		return nil, apperrors.Validation("cannot change your own role")
	}

	current, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user for role change: %w", err)
	}
	if current.Role == role {
		return current, nil
	}

	user, err := s.users.SetRole(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("set role: %w", err)
	}

	if err := s.events.RoleChanged(ctx, user, current.Role, actorID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.role_changed event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "role changed",
		slog.String("user_id", user.ID),
		slog.String("from", current.Role.String()),
		slog.String("to", role.String()),
		slog.String("actor_id", actorID),
	)
	return user, nil
}
