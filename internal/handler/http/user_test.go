package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/repository/memory"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/pagination"
)

func adminSession(t *testing.T, s *testServer) (loginData, *domain.User) {
	t.Helper()
	admin := s.seedUser(t, "admin@safelanka.lk", "Admin@123", domain.RoleAdmin, true)
	return s.login(t, "admin@safelanka.lk", "Admin@123"), admin
}

// ============================================================================
// Self service
// ============================================================================

func TestMe_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodGet, "/api/v1/users/me", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_FAILED", env.Error.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec, _ = s.do(t, http.MethodGet, "/api/v1/users/me", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateMe(t *testing.T) {
	s := newTestServer(t)
	s.seedUser(t, "analyst@safelanka.lk", "Passw0rd!", domain.RoleAnalyst, true)
	session := s.login(t, "analyst@safelanka.lk", "Passw0rd!")

	rec, env := s.do(t, http.MethodPatch, "/api/v1/users/me", map[string]string{
		"fullName":  "Kamala Silva",
		"division":  "Kandy",
		"avatarUrl": "https://cdn.safelanka.lk/kamala.png",
	}, session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	u := decodeUser(t, env)
	assert.Equal(t, "Kamala Silva", u.FullName)
	require.NotNil(t, u.Division)
	assert.Equal(t, "Kandy", *u.Division)
	require.NotNil(t, u.AvatarURL)
}

func TestUpdateMe_PasswordWithoutCurrent(t *testing.T) {
	s := newTestServer(t)
	s.seedUser(t, "analyst@safelanka.lk", "Passw0rd!", domain.RoleAnalyst, true)
	session := s.login(t, "analyst@safelanka.lk", "Passw0rd!")

	rec, env := s.do(t, http.MethodPatch, "/api/v1/users/me", map[string]string{"newPassword": "N3wPassword"}, session.AccessToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Fields, "currentPassword")
}

// ============================================================================
// Administration
// ============================================================================

func TestAdminRoutes_ForbiddenForNonAdmins(t *testing.T) {
	s := newTestServer(t)
	target := s.seedUser(t, "pending@safelanka.lk", "Passw0rd!", domain.RoleOfficer, false)

	for _, role := range []domain.Role{domain.RoleOfficer, domain.RoleAnalyst} {
		email := "caller-" + role.String() + "@safelanka.lk"
		s.seedUser(t, email, "Passw0rd!", role, true)
		session := s.login(t, email, "Passw0rd!")

		rec, env := s.do(t, http.MethodGet, "/api/v1/users", nil, session.AccessToken)
		require.Equal(t, http.StatusForbidden, rec.Code, role)
		assert.Equal(t, "FORBIDDEN", env.Error.Code)

		rec, _ = s.do(t, http.MethodPatch, "/api/v1/users/"+target.ID+"/approve", map[string]bool{"approved": true}, session.AccessToken)
		assert.Equal(t, http.StatusForbidden, rec.Code, role)

		rec, _ = s.do(t, http.MethodPatch, "/api/v1/users/"+target.ID+"/role", map[string]string{"role": "ADMIN"}, session.AccessToken)
		assert.Equal(t, http.StatusForbidden, rec.Code, role)
	}
}

func TestListUsers_FiltersAndMeta(t *testing.T) {
	s := newTestServer(t)
	admin, _ := adminSession(t, s)
	s.seedUser(t, "officer1@safelanka.lk", "Passw0rd!", domain.RoleOfficer, false)
	s.seedUser(t, "officer2@safelanka.lk", "Passw0rd!", domain.RoleOfficer, true)
	s.seedUser(t, "analyst1@safelanka.lk", "Passw0rd!", domain.RoleAnalyst, false)

	rec, env := s.do(t, http.MethodGet, "/api/v1/users?role=officer&approved=false", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var users []domain.User
	require.NoError(t, json.Unmarshal(env.Data, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "officer1@safelanka.lk", users[0].Email)

	var meta pagination.Meta
	require.NoError(t, json.Unmarshal(env.Meta, &meta))
	assert.Equal(t, 1, meta.Total)
	assert.Equal(t, pagination.DefaultPageSize, meta.PageSize)

	rec, env = s.do(t, http.MethodGet, "/api/v1/users?q=analyst&pageSize=10", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &users))
	assert.Len(t, users, 1)
}

func TestListUsers_BadFilters(t *testing.T) {
	s := newTestServer(t)
	admin, _ := adminSession(t, s)

	for _, q := range []string{"?role=ROOT", "?approved=maybe"} {
		rec, env := s.do(t, http.MethodGet, "/api/v1/users"+q, nil, admin.AccessToken)
		require.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	}
}

func TestApprove_BadInput(t *testing.T) {
	s := newTestServer(t)
	admin, _ := adminSession(t, s)

	rec, _ := s.do(t, http.MethodPatch, "/api/v1/users/not-a-uuid/approve", map[string]bool{"approved": true}, admin.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := s.do(t, http.MethodPatch, "/api/v1/users/3f2c9a4e-8d1b-4e6f-a0b2-7c5d9e1f3a21/approve", map[string]bool{"approved": true}, admin.AccessToken)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	target := s.seedUser(t, "officer@safelanka.lk", "Passw0rd!", domain.RoleOfficer, false)
	rec, env = s.do(t, http.MethodPatch, "/api/v1/users/"+target.ID+"/approve", map[string]string{}, admin.AccessToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Fields, "approved")
}

func TestApprove_WithdrawEndsSessions(t *testing.T) {
	s := newTestServer(t)
	admin, adminUser := adminSession(t, s)
	target := s.seedUser(t, "officer@safelanka.lk", "Passw0rd!", domain.RoleOfficer, true)
	session := s.login(t, "officer@safelanka.lk", "Passw0rd!")

	rec, env := s.do(t, http.MethodPatch, "/api/v1/users/"+target.ID+"/approve", map[string]bool{"approved": false}, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeUser(t, env).Approved)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": session.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// An administrator cannot lock themselves out.
	rec, _ = s.do(t, http.MethodPatch, "/api/v1/users/"+adminUser.ID+"/approve", map[string]bool{"approved": false}, admin.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangeRole(t *testing.T) {
	s := newTestServer(t)
	admin, _ := adminSession(t, s)
	target := s.seedUser(t, "officer@safelanka.lk", "Passw0rd!", domain.RoleOfficer, true)

	rec, env := s.do(t, http.MethodPatch, "/api/v1/users/"+target.ID+"/role", map[string]string{"role": "analyst"}, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.RoleAnalyst, decodeUser(t, env).Role)

	rec, env = s.do(t, http.MethodPatch, "/api/v1/users/"+target.ID+"/role", map[string]string{"role": "ROOT"}, admin.AccessToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Fields, "role")

	// The new role is carried by tokens issued after the change.
	session := s.login(t, "officer@safelanka.lk", "Passw0rd!")
	assert.Equal(t, domain.RoleAnalyst, session.User.Role)
}

func TestAdminRoutes_RecheckCallerOnEveryRequest(t *testing.T) {
	s := newTestServer(t)
	admin, _ := adminSession(t, s)
	other := s.seedUser(t, "second-admin@safelanka.lk", "Passw0rd!", domain.RoleAdmin, true)
	stale := s.login(t, "second-admin@safelanka.lk", "Passw0rd!")
	target := s.seedUser(t, "officer@safelanka.lk", "Passw0rd!", domain.RoleOfficer, true)

	rec, _ := s.do(t, http.MethodGet, "/api/v1/users", nil, stale.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	// Demotion alone is enough to lose the admin routes.
	rec, _ = s.do(t, http.MethodPatch, "/api/v1/users/"+other.ID+"/role", map[string]string{"role": "ANALYST"}, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env := s.do(t, http.MethodGet, "/api/v1/users", nil, stale.AccessToken)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	rec, _ = s.do(t, http.MethodPatch, "/api/v1/users/"+other.ID+"/approve", map[string]bool{"approved": false}, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = s.do(t, http.MethodGet, "/api/v1/users", nil, stale.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodPatch, "/api/v1/users/"+target.ID+"/approve", map[string]bool{"approved": false}, stale.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodPatch, "/api/v1/users/"+target.ID+"/role", map[string]string{"role": "ADMIN"}, stale.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The target was never touched by the rejected requests.
	stored, err := s.users.GetByID(context.Background(), target.ID)
	require.NoError(t, err)
	assert.True(t, stored.Approved)
	assert.Equal(t, domain.RoleOfficer, stored.Role)
}

func TestAdminRoutes_DeletedCallerIsUnauthorized(t *testing.T) {
	s := newTestServer(t)
	admin, adminUser := adminSession(t, s)

	memory.DeleteUser(s.users, s.tokens, adminUser.ID)

	rec, env := s.do(t, http.MethodGet, "/api/v1/users", nil, admin.AccessToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_FAILED", env.Error.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": admin.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
