package http

import (
	"log/slog"
	"net/http"

	"github.com/Taro112233/mederror/internal/domain"
	"github.com/Taro112233/mederror/internal/service"
)

// PageHandler serves the page-data endpoints behind the edge gate. Each
// returns the JSON payload the matching page renders from.
type PageHandler struct {
	security *service.SecurityService
	logger   *slog.Logger
}

// NewPageHandler creates the page handler.
func NewPageHandler(security *service.SecurityService, log *slog.Logger) *PageHandler {
	return &PageHandler{security: security, logger: log}
}

type pageData struct {
	Page    string          `json:"page"`
	Account *domain.Account `json:"account,omitempty"`
}

// Home handles GET /. Mounted behind the session guard.
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{Data: pageData{
		Page:    "home",
		Account: accountFrom(r.Context()),
	}})
}

// Login handles GET /login. Public.
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{Data: pageData{Page: "login"}})
}

// Register handles GET /register. Public.
func (h *PageHandler) Register(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{Data: pageData{Page: "register"}})
}

// Onboarding handles GET /onboarding. Mounted behind the session guard.
func (h *PageHandler) Onboarding(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{Data: pageData{
		Page:    "onboarding",
		Account: accountFrom(r.Context()),
	}})
}

// PendingApproval handles GET /pending-approval. Mounted behind the session
// guard.
func (h *PageHandler) PendingApproval(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{Data: pageData{
		Page:    "pending-approval",
		Account: accountFrom(r.Context()),
	}})
}

type securityPageData struct {
	Page     string                 `json:"page"`
	Account  *domain.Account        `json:"account,omitempty"`
	Security *domain.SecurityStatus `json:"security,omitempty"`
}

// SecuritySettings handles GET /settings/security. It includes the current
// step-up window state so the page can decide whether to prompt for a
// password first.
func (h *PageHandler) SecuritySettings(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())
	data := securityPageData{
		Page:    "settings-security",
		Account: account,
	}

	if status, err := h.security.CheckAccess(cookieValue(r, securityCookieName), account.ID); err == nil {
		data.Security = status
	} else {
		data.Security = &domain.SecurityStatus{Verified: false}
	}

	writeJSON(w, http.StatusOK, response{Data: data})
}
