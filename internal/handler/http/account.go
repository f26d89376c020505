package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Taro112233/mederror/internal/service"
	apperrors "github.com/Taro112233/mederror/pkg/errors"
	"github.com/Taro112233/mederror/pkg/validator"
)

// AccountHandler serves profile, onboarding, and admin account management.
type AccountHandler struct {
	accounts *service.AccountService
	cookies  CookieConfig
	ttls     SessionCookieTTLs
	logger   *slog.Logger
}

// NewAccountHandler creates the account handler.
func NewAccountHandler(accounts *service.AccountService, cookies CookieConfig, ttls SessionCookieTTLs, log *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		cookies:  cookies,
		ttls:     ttls,
		logger:   log,
	}
}

type onboardingRequest struct {
	Name           string `json:"name" validate:"required,max=128"`
	Position       string `json:"position" validate:"max=128"`
	Phone          string `json:"phone" validate:"max=32"`
	OrganizationID string `json:"orgId" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=128"`
}

type adminUpdateRequest struct {
	Username *string `json:"username"`
	Name     *string `json:"name"`
	Position *string `json:"position"`
	Phone    *string `json:"phone"`
	Role     *string `json:"role"`
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// Me handles GET /api/v1/accounts/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())
	if account == nil {
		writeAppError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}
	writeJSON(w, http.StatusOK, response{Data: account})
}

// CompleteOnboarding handles POST /api/v1/accounts/onboarding. The session
// cookie is reissued so the new organization and onboarded flag take effect
// without a re-login.
func (h *AccountHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())
	if account == nil {
		writeAppError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	var req onboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, r, apperrors.InvalidInput("invalid request body"), h.logger)
		return
	}
	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	updated, token, err := h.accounts.CompleteOnboarding(r.Context(), account.ID, service.OnboardingInput{
		Name:           req.Name,
		Position:       req.Position,
		Phone:          req.Phone,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.cookies.setSessionCookie(w, token, h.ttls.Session)

	h.logger.InfoContext(r.Context(), "onboarding completed",
		slog.String("account_id", updated.ID),
	)
	writeJSON(w, http.StatusOK, response{Data: updated})
}

// ChangePassword handles POST /api/v1/accounts/password. The router mounts
// it behind the step-up verification guard.
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())
	if account == nil {
		writeAppError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, r, apperrors.InvalidInput("invalid request body"), h.logger)
		return
	}
	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), account.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	// Every session was revoked, including this one.
	h.cookies.clearCookie(w, sessionCookieName)
	h.cookies.clearCookie(w, refreshCookieName)
	h.cookies.clearCookie(w, securityCookieName)

	h.logger.InfoContext(r.Context(), "password changed",
		slog.String("account_id", account.ID),
	)
	writeJSON(w, http.StatusOK, response{Data: map[string]string{"status": "password_changed"}})
}

// List handles GET /api/v1/admin/accounts.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, response{Data: accounts})
}

// Get handles GET /api/v1/admin/accounts/{id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, response{Data: account})
}

// Update handles PUT /api/v1/admin/accounts/{id}.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req adminUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, r, apperrors.InvalidInput("invalid request body"), h.logger)
		return
	}

	account, err := h.accounts.AdminUpdate(r.Context(), chi.URLParam(r, "id"), service.AdminUpdateInput{
		Username: req.Username,
		Name:     req.Name,
		Position: req.Position,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, response{Data: account})
}

// SetRole handles PUT /api/v1/admin/accounts/{id}/role.
func (h *AccountHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, r, apperrors.InvalidInput("invalid request body"), h.logger)
		return
	}
	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	account, err := h.accounts.SetRole(r.Context(), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.logger.InfoContext(r.Context(), "role updated",
		slog.String("account_id", account.ID),
		slog.String("role", account.Role),
	)
	writeJSON(w, http.StatusOK, response{Data: account})
}

// Delete handles DELETE /api/v1/admin/accounts/{id}.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
