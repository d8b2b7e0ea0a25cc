package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	apperrors "github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/errors"
)

func newUserTestFixture(t *testing.T) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewUserRepository(mock), mock
}

func strPtr(s string) *string { return &s }

func sampleUser() *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:           "7d4c1d1e-5f0b-4d59-a7a4-1d6b7c2f9e01",
		FullName:     "Nimal Perera",
		Email:        "nimal@safelanka.lk",
		PasswordHash: "hash-abc",
		Role:         domain.RoleOfficer,
		Approved:     false,
		Division:     strPtr("Colombo"),
		AvatarURL:    nil,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func userColumnNames() []string {
	return []string{
		"id", "full_name", "email", "password_hash", "role",
		"approved", "division", "avatar_url", "created_at", "updated_at",
	}
}

func userRow(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows(userColumnNames()).AddRow(
		u.ID, u.FullName, u.Email, u.PasswordHash, string(u.Role),
		u.Approved, u.Division, u.AvatarURL, u.CreatedAt, u.UpdatedAt,
	)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestUserRepository_Create_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()
	mock.ExpectExec("INSERT INTO users").
		WithArgs(
			u.ID, u.FullName, u.Email, u.PasswordHash, "OFFICER",
			false, u.Division, u.AvatarURL, pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), u))
	assert.False(t, u.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_AssignsID(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()
	u.ID = ""
	mock.ExpectExec("INSERT INTO users").
		WithArgs(
			pgxmock.AnyArg(), u.FullName, u.Email, u.PasswordHash, "OFFICER",
			false, u.Division, u.AvatarURL, pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), u))
	assert.Len(t, u.ID, 36)
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := repo.Create(context.Background(), sampleUser())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestUserRepository_Create_DBError(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), sampleUser())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert user")
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func TestUserRepository_GetByID_Found(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()
	mock.ExpectQuery("SELECT .+ FROM users WHERE id =").
		WithArgs(u.ID).
		WillReturnRows(userRow(u))

	got, err := repo.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, domain.RoleOfficer, got.Role)
	require.NotNil(t, got.Division)
	assert.Equal(t, "Colombo", *got.Division)
	assert.Nil(t, got.AvatarURL)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM users WHERE id =").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRepository_GetByEmail(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()
	mock.ExpectQuery("SELECT .+ FROM users WHERE email =").
		WithArgs(u.Email).
		WillReturnRows(userRow(u))

	got, err := repo.GetByEmail(context.Background(), u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash-abc", got.PasswordHash)
}

func TestUserRepository_GetByEmail_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM users WHERE email =").
		WithArgs("ghost@safelanka.lk").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "ghost@safelanka.lk")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRepository_ExistsByEmail(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("nimal@safelanka.lk").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByEmail(context.Background(), "nimal@safelanka.lk")
	require.NoError(t, err)
	assert.True(t, exists)
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestUserFilterClause(t *testing.T) {
	where, args := userFilterClause(domain.UserFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	role := domain.RoleAnalyst
	approved := true
	where, args = userFilterClause(domain.UserFilter{Role: &role, Approved: &approved, Query: " 50%_off "})
	assert.Equal(t, " WHERE role = $1 AND approved = $2 AND (full_name ILIKE $3 OR email ILIKE $3)", where)
	assert.Equal(t, []any{"ANALYST", true, `%50\%\_off%`}, args)
}

func TestUserRepository_List(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()
	role := domain.RoleOfficer

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE role =`).
		WithArgs("OFFICER").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery("SELECT .+ FROM users WHERE role = .+ ORDER BY created_at DESC").
		WithArgs("OFFICER", 10, 10).
		WillReturnRows(userRow(u))

	users, total, err := repo.List(context.Background(), domain.UserFilter{Role: &role}, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, users, 1)
	assert.Equal(t, u.ID, users[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_List_Empty(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT .+ FROM users ORDER BY").
		WithArgs(25, 0).
		WillReturnRows(pgxmock.NewRows(userColumnNames()))

	users, total, err := repo.List(context.Background(), domain.UserFilter{}, 25, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestUserRepository_List_CountError(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).WillReturnError(errors.New("timeout"))

	_, _, err := repo.List(context.Background(), domain.UserFilter{}, 25, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count users")
}

// ---------------------------------------------------------------------------
// Updates
// ---------------------------------------------------------------------------

func TestUserRepository_UpdateProfile(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()
	u.FullName = "Nimal K. Perera"
	u.AvatarURL = strPtr("https://cdn.safelanka.lk/a.png")

	mock.ExpectQuery("UPDATE users SET full_name").
		WithArgs(u.FullName, u.Division, u.AvatarURL, pgxmock.AnyArg(), u.ID).
		WillReturnRows(userRow(u))

	in := *u
	require.NoError(t, repo.UpdateProfile(context.Background(), &in))
	assert.Equal(t, "Nimal K. Perera", in.FullName)
	assert.Equal(t, "hash-abc", in.PasswordHash)
}

func TestUserRepository_UpdateProfile_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE users SET full_name").WillReturnError(pgx.ErrNoRows)

	err := repo.UpdateProfile(context.Background(), sampleUser())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("new-hash", pgxmock.AnyArg(), "u-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("new-hash", pgxmock.AnyArg(), "u-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.UpdatePassword(context.Background(), "u-1", "new-hash"))
	assert.ErrorIs(t, repo.UpdatePassword(context.Background(), "u-2", "new-hash"), apperrors.ErrNotFound)
}

func TestUserRepository_SetApproved(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()
	u.Approved = true
	mock.ExpectQuery("UPDATE users SET approved").
		WithArgs(true, pgxmock.AnyArg(), u.ID).
		WillReturnRows(userRow(u))

	got, err := repo.SetApproved(context.Background(), u.ID, true)
	require.NoError(t, err)
	assert.True(t, got.Approved)
}

func TestUserRepository_SetRole_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE users SET role").
		WithArgs("ANALYST", pgxmock.AnyArg(), "missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.SetRole(context.Background(), "missing", domain.RoleAnalyst)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
