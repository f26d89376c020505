package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Taro112233/mederror/internal/service"
	apperrors "github.com/Taro112233/mederror/pkg/errors"
	"github.com/Taro112233/mederror/pkg/validator"
)

// SessionCookieTTLs holds the cookie lifetimes the auth handler issues.
type SessionCookieTTLs struct {
	Session  time.Duration
	Refresh  time.Duration
	Security time.Duration
}

// AuthHandler serves registration, login, refresh, and logout.
type AuthHandler struct {
	sessions *service.SessionService
	accounts *service.AccountService
	cookies  CookieConfig
	ttls     SessionCookieTTLs
	logger   *slog.Logger
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(
	sessions *service.SessionService,
	accounts *service.AccountService,
	cookies CookieConfig,
	ttls SessionCookieTTLs,
	log *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		accounts: accounts,
		cookies:  cookies,
		ttls:     ttls,
		logger:   log,
	}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	OrganizationID *string `json:"orgId"`
	Username       string  `json:"username" validate:"required"`
	Password       string  `json:"password" validate:"required"`
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, r, apperrors.InvalidInput("invalid request body"), h.logger)
		return
	}
	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	account, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.logger.InfoContext(r.Context(), "account registered",
		slog.String("account_id", account.ID),
		slog.String("username", account.Username),
	)
	writeJSON(w, http.StatusCreated, response{Data: account})
}

// Login handles POST /api/v1/auth/login. On success it sets the session and
// refresh cookies.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, r, apperrors.InvalidInput("invalid request body"), h.logger)
		return
	}
	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	account, pair, err := h.sessions.Login(r.Context(), service.LoginInput{
		OrganizationID: req.OrganizationID,
		Username:       req.Username,
		Password:       req.Password,
	})
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.cookies.setSessionCookie(w, pair.AccessToken, h.ttls.Session)
	h.cookies.setRefreshCookie(w, pair.RefreshToken, h.ttls.Refresh)

	h.logger.InfoContext(r.Context(), "account logged in",
		slog.String("account_id", account.ID),
	)
	writeJSON(w, http.StatusOK, response{Data: account})
}

// Refresh handles POST /api/v1/auth/refresh. It rotates the refresh token
// and reissues both cookies.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	account, pair, err := h.sessions.Refresh(r.Context(), cookieValue(r, refreshCookieName))
	if err != nil {
		// A dead chain means the cookies are useless; clear them so the
		// client falls back to login cleanly.
		h.cookies.clearCookie(w, sessionCookieName)
		h.cookies.clearCookie(w, refreshCookieName)
		writeAppError(w, r, err, h.logger)
		return
	}

	h.cookies.setSessionCookie(w, pair.AccessToken, h.ttls.Session)
	h.cookies.setRefreshCookie(w, pair.RefreshToken, h.ttls.Refresh)

	writeJSON(w, http.StatusOK, response{Data: account})
}

// Logout handles POST /api/v1/auth/logout. It is idempotent: logging out
// without a session still succeeds and clears cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context(), cookieValue(r, refreshCookieName)); err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.cookies.clearCookie(w, sessionCookieName)
	h.cookies.clearCookie(w, refreshCookieName)
	h.cookies.clearCookie(w, securityCookieName)

	writeJSON(w, http.StatusOK, response{Data: map[string]string{"status": "logged_out"}})
}

// Cleanup handles POST /api/v1/auth/cleanup. It removes expired and
// inactivity-stale refresh tokens and reports the counts.
func (h *AuthHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	result, err := h.sessions.Cleanup(r.Context())
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, response{Data: result})
}
