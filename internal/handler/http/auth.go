package http

import (
	"encoding/json"
	"net/http"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/service"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/httputil"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/middleware"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/validator"
)

// AuthHandler handles HTTP requests for session endpoints.
type AuthHandler struct {
	sessions *service.SessionService
	errs     httputil.ErrorWriter
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(sessions *service.SessionService, errs httputil.ErrorWriter) *AuthHandler {
	return &AuthHandler{sessions: sessions, errs: errs}
}

// --- Request DTOs ---

type RegisterRequest struct {
	FullName string  `json:"fullName" validate:"required,min=2,max=120"`
	Email    string  `json:"email" validate:"required,email,max=254"`
	Password string  `json:"password" validate:"required,max=72,password"`
	Role     string  `json:"role" validate:"omitempty,max=16"`
	Division *string `json:"division" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,max=72,password"`
}

// --- Response types ---

type userResponse struct {
	User *domain.User `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}

	user, err := h.sessions.Register(r.Context(), service.RegisterInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Division: req.Division,
	})
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	httputil.WriteData(w, http.StatusCreated, userResponse{User: user})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}

	res, err := h.sessions.Login(r.Context(), service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, res)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, pair)
}

// Logout handles POST /api/v1/auth/logout. A missing or unreadable body is
// treated as an empty token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req)

	h.sessions.Logout(r.Context(), req.RefreshToken)
	httputil.WriteData(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

// ChangePassword handles POST /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	if err := h.sessions.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		h.errs.Write(w, r, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, messageResponse{Message: "Password changed successfully"})
}
