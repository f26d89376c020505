package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Taro112233/mederror/internal/auth"
	"github.com/Taro112233/mederror/internal/domain"
)

// Paths the edge gate never redirects away from.
var edgePublicPrefixes = []string{
	"/api/v1/auth/",
	"/health",
	"/metrics",
}

// Pages that belong to the signup flow. A fully approved account landing on
// one of these is bounced back home.
var edgeFlowPaths = map[string]struct{}{
	"/login":            {},
	"/register":         {},
	"/onboarding":       {},
	"/pending-approval": {},
}

// EdgeGate routes signed-in users to the page matching their account state.
// It reads the session cookie and decides from the token snapshot alone,
// without touching the database, so it is advisory: the per-route guard
// remains the authoritative check behind it.
type EdgeGate struct {
	tokens *auth.Manager
	logger *slog.Logger
}

// NewEdgeGate creates the advisory edge middleware.
func NewEdgeGate(tokens *auth.Manager, log *slog.Logger) *EdgeGate {
	return &EdgeGate{tokens: tokens, logger: log}
}

// Handler applies the redirect rules to page routes.
func (e *EdgeGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if isEdgePublic(path) {
			next.ServeHTTP(w, r)
			return
		}

		_, onFlowPage := edgeFlowPaths[path]

		token := cookieValue(r, sessionCookieName)
		if token == "" {
			if onFlowPage {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		claims, err := e.tokens.ParseAccessToken(token)
		if err != nil {
			if onFlowPage {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		if !claims.Onboarded {
			if path != "/onboarding" {
				http.Redirect(w, r, "/onboarding", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if !domain.IsApproved(claims.Role) {
			if path != "/pending-approval" {
				http.Redirect(w, r, "/pending-approval", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		// Onboarded and approved. Flow pages no longer apply.
		if onFlowPage {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isEdgePublic(path string) bool {
	for _, prefix := range edgePublicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
