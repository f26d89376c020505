package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Taro112233/mederror/internal/domain"
	"github.com/Taro112233/mederror/pkg/health"
	"github.com/Taro112233/mederror/pkg/middleware"
)

// RouterDeps bundles everything the router needs.
type RouterDeps struct {
	Auth     *AuthHandler
	Accounts *AccountHandler
	Security *SecurityHandler
	Pages    *PageHandler
	Guard    *Guard
	Edge     *EdgeGate
	Health   *health.Handler
	CORS     CORSConfig
	Logger   *slog.Logger
}

// NewRouter wires all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogging(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.PrometheusMetrics("mederror"))
	r.Use(CORS(deps.CORS))

	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", deps.Auth.Register)
			r.Post("/login", deps.Auth.Login)
			r.Post("/refresh", deps.Auth.Refresh)
			r.Post("/logout", deps.Auth.Logout)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Use(deps.Guard.RequireSession)

			r.Get("/me", deps.Accounts.Me)
			r.Post("/onboarding", deps.Accounts.CompleteOnboarding)

			r.Group(func(r chi.Router) {
				r.Use(deps.Guard.RequireOnboarded)
				r.Use(deps.Guard.RequireApproved)
				r.With(deps.Guard.RequireSecurityVerified).
					Post("/password", deps.Accounts.ChangePassword)
			})
		})

		r.Route("/security", func(r chi.Router) {
			r.Use(deps.Guard.RequireSession)
			r.Use(deps.Guard.RequireOnboarded)
			r.Use(deps.Guard.RequireApproved)

			r.Post("/verify", deps.Security.VerifyPassword)
			r.Get("/status", deps.Security.CheckAccess)
			r.Post("/logout", deps.Security.Revoke)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.Guard.RequireSession)
			r.Use(deps.Guard.RequireOnboarded)
			r.Use(deps.Guard.RequireRole(domain.RoleAdmin, domain.RoleDeveloper))

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", deps.Accounts.List)
				r.Get("/{id}", deps.Accounts.Get)
				r.Put("/{id}", deps.Accounts.Update)
				r.Put("/{id}/role", deps.Accounts.SetRole)
				r.Delete("/{id}", deps.Accounts.Delete)
			})

			r.Post("/cleanup", deps.Auth.Cleanup)
		})
	})

	// Page-data routes sit behind the advisory edge gate; guarded pages
	// additionally re-verify through the session guard, which answers page
	// failures with redirects rather than JSON errors.
	r.Group(func(r chi.Router) {
		r.Use(deps.Edge.Handler)

		r.Get("/login", deps.Pages.Login)
		r.Get("/register", deps.Pages.Register)

		pages := deps.Guard.ForPages()
		r.Group(func(r chi.Router) {
			r.Use(pages.RequireSession)

			r.Get("/onboarding", deps.Pages.Onboarding)
			r.With(pages.RequireOnboarded).
				Get("/pending-approval", deps.Pages.PendingApproval)

			r.Group(func(r chi.Router) {
				r.Use(pages.RequireOnboarded)
				r.Use(pages.RequireApproved)

				r.Get("/", deps.Pages.Home)
				r.Get("/settings/security", deps.Pages.SecuritySettings)
			})
		})
	})

	return r
}
