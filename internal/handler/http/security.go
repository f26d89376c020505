package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Taro112233/mederror/internal/domain"
	"github.com/Taro112233/mederror/internal/service"
	apperrors "github.com/Taro112233/mederror/pkg/errors"
	"github.com/Taro112233/mederror/pkg/validator"
)

// SecurityHandler serves step-up password verification. All routes are
// mounted behind the session guard.
type SecurityHandler struct {
	security *service.SecurityService
	cookies  CookieConfig
	ttls     SessionCookieTTLs
	logger   *slog.Logger
}

// NewSecurityHandler creates the security handler.
func NewSecurityHandler(security *service.SecurityService, cookies CookieConfig, ttls SessionCookieTTLs, log *slog.Logger) *SecurityHandler {
	return &SecurityHandler{
		security: security,
		cookies:  cookies,
		ttls:     ttls,
		logger:   log,
	}
}

type verifyPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// VerifyPassword handles POST /api/v1/security/verify. On success it sets
// the strict step-up cookie opening a fresh verification window.
func (h *SecurityHandler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())
	if account == nil {
		writeAppError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	var req verifyPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, r, apperrors.InvalidInput("invalid request body"), h.logger)
		return
	}
	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	token, err := h.security.VerifyPassword(r.Context(), account.ID, req.Password)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.cookies.setSecurityCookie(w, token, h.ttls.Security)

	h.logger.InfoContext(r.Context(), "security verification granted",
		slog.String("account_id", account.ID),
	)
	writeJSON(w, http.StatusOK, response{Data: domain.SecurityStatus{
		Verified:         true,
		RemainingSeconds: int64(h.ttls.Security.Seconds()),
	}})
}

// CheckAccess handles GET /api/v1/security/status. It reports whether the
// step-up window is still open and how many seconds remain.
func (h *SecurityHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())
	if account == nil {
		writeAppError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	status, err := h.security.CheckAccess(cookieValue(r, securityCookieName), account.ID)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, response{Data: status})
}

// Revoke handles POST /api/v1/security/logout. It closes the step-up window
// immediately by clearing the cookie.
func (h *SecurityHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.cookies.clearCookie(w, securityCookieName)
	writeJSON(w, http.StatusOK, response{Data: map[string]string{"status": "revoked"}})
}
