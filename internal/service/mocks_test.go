package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/auth"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/repository/memory"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil && user.ID == "" {
		user.ID = "new-user-id"
	}
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepository) List(ctx context.Context, filter domain.UserFilter, limit, offset int) ([]domain.User, int, error) {
	args := m.Called(ctx, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.User), args.Int(1), args.Error(2)
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *mockUserRepository) SetApproved(ctx context.Context, id string, approved bool) (*domain.User, error) {
	args := m.Called(ctx, id, approved)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) SetRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	args := m.Called(ctx, id, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// --- Mock Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) UserRegistered(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockPublisher) ApprovalChanged(ctx context.Context, user *domain.User, actorID string) error {
	return m.Called(ctx, user, actorID).Error(0)
}

func (m *mockPublisher) RoleChanged(ctx context.Context, user *domain.User, previous domain.Role, actorID string) error {
	return m.Called(ctx, user, previous, actorID).Error(0)
}

func (m *mockPublisher) PasswordChanged(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

// --- Fixture ---

type fixture struct {
	users    *mockUserRepository
	events   *mockPublisher
	tokens   *memory.RefreshTokenRepository
	hasher   *auth.PasswordHasher
	signer   *auth.TokenSigner
	ledger   *auth.Ledger
	sessions *SessionService
	svc      *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:  &mockUserRepository{},
		events: &mockPublisher{},
		tokens: memory.NewRefreshTokenRepository(),
		hasher: auth.NewPasswordHasher(4),
		signer: auth.NewTokenSigner(auth.TokenConfig{
			AccessSecret:  "test-access-secret-0123456789abcdef",
			RefreshSecret: "test-refresh-secret-0123456789abcdef",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    time.Hour,
			Issuer:        "safelanka-api",
		}),
	}
	f.ledger = auth.NewLedger(f.tokens, f.signer)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.sessions = NewSessionService(f.users, f.hasher, f.signer, f.ledger, f.events, logger)
	f.svc = NewUserService(f.users, f.sessions, f.ledger, f.events, logger)

	for _, method := range []string{"UserRegistered", "PasswordChanged"} {
		f.events.On(method, mock.Anything, mock.Anything).Return(nil).Maybe()
	}
	f.events.On("ApprovalChanged", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.events.On("RoleChanged", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return f
}

func hashForTest(t *testing.T, password string) string {
	t.Helper()
	digest, err := auth.NewPasswordHasher(4).Hash(password)
	require.NoError(t, err)
	return digest
}

func approvedUser(t *testing.T) *domain.User {
	t.Helper()
	div := "Colombo"
	return &domain.User{
		ID:           "u-officer",
		FullName:     "Nimal Perera",
		Email:        "nimal@safelanka.lk",
		PasswordHash: hashForTest(t, "Passw0rd!"),
		Role:         domain.RoleOfficer,
		Approved:     true,
		Division:     &div,
	}
}
