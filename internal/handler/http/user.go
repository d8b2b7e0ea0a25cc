package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/service"
	apperrors "github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/errors"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/httputil"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/middleware"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/pagination"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/validator"
)

// UserHandler handles HTTP requests for account endpoints.
type UserHandler struct {
	users *service.UserService
	errs  httputil.ErrorWriter
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(users *service.UserService, errs httputil.ErrorWriter) *UserHandler {
	return &UserHandler{users: users, errs: errs}
}

// --- Request DTOs ---

type UpdateMeRequest struct {
	FullName        *string `json:"fullName" validate:"omitempty,max=120"`
	Division        *string `json:"division" validate:"omitempty,max=100"`
	AvatarURL       *string `json:"avatarUrl" validate:"omitempty,max=500"`
	CurrentPassword string  `json:"currentPassword" validate:"omitempty,max=72"`
	NewPassword     string  `json:"newPassword" validate:"omitempty,max=72"`
}

type ApproveRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// --- Handlers ---

// Me handles GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Me(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, userResponse{User: user})
}

// UpdateMe handles PATCH /api/v1/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateMeRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}

	user, err := h.users.UpdateMe(r.Context(), middleware.UserIDFromContext(r.Context()), service.UpdateProfileInput{
		FullName:        req.FullName,
		Division:        req.Division,
		AvatarURL:       req.AvatarURL,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, userResponse{User: user})
}

// List handles GET /api/v1/users?role=&approved=&q=&page=&pageSize=
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseUserFilter(r)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	params := pagination.FromRequest(r)

	users, total, err := h.users.List(r.Context(), filter, params)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	res := pagination.NewResult(users, total, params)
	httputil.WriteList(w, res.Data, res.Meta)
}

func parseUserFilter(r *http.Request) (domain.UserFilter, error) {
	q := r.URL.Query()
	filter := domain.UserFilter{Query: strings.TrimSpace(q.Get("q"))}

	if v := q.Get("role"); v != "" {
		role, ok := domain.ParseRole(v)
		if !ok {
			return filter, apperrors.ValidationFields("invalid query parameter", map[string]string{
				"role": "must be one of: ADMIN OFFICER ANALYST",
			})
		}
		filter.Role = &role
	}
	if v := q.Get("approved"); v != "" {
		approved, err := strconv.ParseBool(v)
		if err != nil {
			return filter, apperrors.ValidationFields("invalid query parameter", map[string]string{
				"approved": "must be a boolean",
			})
		}
		filter.Approved = &approved
	}
	return filter, nil
}

// Approve handles PATCH /api/v1/users/{id}/approve
func (h *UserHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req ApproveRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}

	actorID := middleware.UserIDFromContext(r.Context())
	user, err := h.users.Approve(r.Context(), actorID, id.String(), *req.Approved)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, userResponse{User: user})
}

// ChangeRole handles PATCH /api/v1/users/{id}/role
func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req ChangeRoleRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}

	role, ok := domain.ParseRole(req.Role)
	if !ok {
		role = domain.Role(req.Role)
	}

	actorID := middleware.UserIDFromContext(r.Context())
	user, err := h.users.ChangeRole(r.Context(), actorID, id.String(), role)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, userResponse{User: user})
}
