package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/forensicnotes/server/internal/http/handlers"
	"github.com/forensicnotes/server/internal/logging"
	"github.com/forensicnotes/server/internal/middleware"
)

// RouterDeps bundles what the router needs from main
type RouterDeps struct {
	Env     string
	Logger  zerolog.Logger
	Tokens  middleware.TokenVerifier
	Users   middleware.UserLoader
	Limiter middleware.Limiter

	// TrustProxy honours X-Forwarded-For and X-Real-IP. Enable it only behind
	// a proxy that overwrites those headers.
	TrustProxy bool

	Auth     *handlers.AuthHandler
	Accounts *handlers.UserHandler
	Reports  *handlers.ReportHandler
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if d.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(logging.RequestLogger(d.Logger))
	r.Use(chimw.Recoverer)

	r.NotFound(handlers.HandleNotFound)
	r.MethodNotAllowed(handlers.HandleMethodNotAllowed)

	r.Get("/", handlers.HandleIndex)
	r.Get("/health", handlers.NewHealthHandler(d.Env).ServeHTTP)

	authenticate := middleware.Authenticate(d.Tokens, d.Users)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if d.Limiter != nil {
				r.Use(middleware.RateLimitMiddleware(d.Limiter, middleware.GetIPKey))
			}
			r.Post("/signup", d.Auth.HandleSignup)
			r.Post("/login", d.Auth.HandleLogin)
			r.Post("/refresh", d.Auth.HandleRefresh)
			r.Post("/logout", d.Auth.HandleLogout)
			r.With(authenticate).Post("/logout-all", d.Auth.HandleLogoutAll)
		})

		// Protected routes (require valid JWT)
		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Route("/users", func(r chi.Router) {
				r.Get("/profile", d.Accounts.HandleGetProfile)
				r.Put("/profile", d.Accounts.HandleUpdateProfile)
				r.Put("/password", d.Accounts.HandleChangePassword)
				r.Delete("/account", d.Accounts.HandleDeactivate)
				r.Get("/sessions", d.Accounts.HandleSessions)
			})

			r.Route("/reports", func(r chi.Router) {
				r.Post("/", d.Reports.HandleCreate)
				r.Get("/", d.Reports.HandleList)
				r.Get("/stats", d.Reports.HandleStats)
				r.Get("/{id}", d.Reports.HandleGet)
				r.Put("/{id}", d.Reports.HandleUpdate)
				r.Delete("/{id}", d.Reports.HandleDelete)
			})
		})
	})

	return r
}
