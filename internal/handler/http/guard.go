package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Taro112233/mederror/internal/auth"
	"github.com/Taro112233/mederror/internal/domain"
	"github.com/Taro112233/mederror/internal/service"
	apperrors "github.com/Taro112233/mederror/pkg/errors"
	"github.com/Taro112233/mederror/pkg/logger"
)

type contextKey string

const accountContextKey contextKey = "account"

// Guard is the authoritative per-route check: it cryptographically verifies
// the session cookie and re-fetches the account so decisions are made
// against the live row, never against token-claim snapshots. API routes get
// JSON errors; the ForPages variant redirects instead.
type Guard struct {
	tokens   *auth.Manager
	accounts *service.AccountService
	security *service.SecurityService
	logger   *slog.Logger
	redirect bool
}

// NewGuard creates a per-route guard.
func NewGuard(tokens *auth.Manager, accounts *service.AccountService, security *service.SecurityService, log *slog.Logger) *Guard {
	return &Guard{
		tokens:   tokens,
		accounts: accounts,
		security: security,
		logger:   log,
	}
}

// ForPages returns a guard that answers failures with a redirect to the
// page matching the account state instead of a JSON error body.
func (g *Guard) ForPages() *Guard {
	pg := *g
	pg.redirect = true
	return &pg
}

// fail writes the failure as JSON, or redirects when the guard is in page
// mode and a destination applies.
func (g *Guard) fail(w http.ResponseWriter, r *http.Request, err error, redirectTo string) {
	if g.redirect && redirectTo != "" {
		http.Redirect(w, r, redirectTo, http.StatusSeeOther)
		return
	}
	writeAppError(w, r, err, g.logger)
}

// RequireSession verifies the session cookie and loads the live account
// into the request context.
func (g *Guard) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := cookieValue(r, sessionCookieName)
		if token == "" {
			g.fail(w, r, apperrors.Unauthorized("authentication required"), "/login")
			return
		}

		claims, err := g.tokens.ParseAccessToken(token)
		if err != nil {
			code := "INVALID_TOKEN"
			if errors.Is(err, auth.ErrTokenExpired) {
				code = "TOKEN_EXPIRED"
			}
			// Unverified decode is for the log line only; it grants nothing.
			if stale, decodeErr := auth.ParseAccessTokenUnverified(token); decodeErr == nil {
				g.logger.WarnContext(r.Context(), "session token rejected",
					slog.String("code", code),
					slog.String("account_id", stale.AccountID),
				)
			}
			g.fail(w, r, apperrors.UnauthorizedCode(code, "session is not valid"), "/login")
			return
		}

		account, err := g.accounts.Get(r.Context(), claims.AccountID)
		if err != nil {
			// The token outlived its account.
			g.fail(w, r, apperrors.UnauthorizedCode("INVALID_TOKEN", "session is not valid"), "/login")
			return
		}

		// The claims snapshot may lag the live row after a role change or
		// onboarding; downstream always sees the live account.
		if claims.Role != account.Role || claims.Onboarded != account.Onboarded {
			g.logger.DebugContext(r.Context(), "token claims stale, using live account",
				slog.String("account_id", account.ID),
				slog.String("claims_role", claims.Role),
				slog.String("live_role", account.Role),
			)
		}

		ctx := context.WithValue(r.Context(), accountContextKey, account)
		ctx = logger.WithAccountID(ctx, account.ID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOnboarded rejects accounts whose live row has not completed
// onboarding, whatever the token claims say. Must be mounted inside
// RequireSession.
func (g *Guard) RequireOnboarded(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := accountFrom(r.Context())
		if account == nil {
			g.fail(w, r, apperrors.Unauthorized("authentication required"), "/login")
			return
		}
		if !account.Onboarded {
			g.fail(w, r, apperrors.Forbidden("onboarding required"), "/onboarding")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireApproved rejects accounts still in the UNAPPROVED state. Must be
// mounted inside RequireSession.
func (g *Guard) RequireApproved(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := accountFrom(r.Context())
		if account == nil {
			g.fail(w, r, apperrors.Unauthorized("authentication required"), "/login")
			return
		}
		if !domain.IsApproved(account.Role) {
			g.fail(w, r, apperrors.Forbidden("account is pending approval"), "/pending-approval")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole restricts a route to the listed roles, checked against the
// live account row. Must be mounted inside RequireSession.
func (g *Guard) RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := accountFrom(r.Context())
			if account == nil {
				g.fail(w, r, apperrors.Unauthorized("authentication required"), "/login")
				return
			}
			if _, ok := allowed[account.Role]; !ok {
				g.fail(w, r, apperrors.Forbidden("insufficient role"), "/")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSecurityVerified gates sensitive operations behind a fresh step-up
// verification. The window is recomputed on every request. Must be mounted
// inside RequireSession.
func (g *Guard) RequireSecurityVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := accountFrom(r.Context())
		if account == nil {
			g.fail(w, r, apperrors.Unauthorized("authentication required"), "/login")
			return
		}

		if err := g.security.RequireVerified(cookieValue(r, securityCookieName), account.ID); err != nil {
			g.fail(w, r, err, "/settings/security")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// accountFrom returns the live account stored by RequireSession, or nil.
func accountFrom(ctx context.Context) *domain.Account {
	account, _ := ctx.Value(accountContextKey).(*domain.Account)
	return account
}
