// Package router sets up all HTTP routes and middleware chains for the
// PostForge studio. It organizes routes into auth and studio groups with
// appropriate middleware stacks.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"postforge/internal/handlers"
	"postforge/internal/middleware"
	"postforge/internal/session"
)

// Deps holds everything the routes are wired to.
type Deps struct {
	Sessions *session.Store
	Auth     *handlers.Auth
	Studio   *handlers.Studio
	Schedule *handlers.Schedule
	Stream   *handlers.Stream
	Metrics  http.Handler

	// LoginLimiter guards credential checks, StageLimiter guards agent and
	// scheduler calls. Either may be nil.
	LoginLimiter *middleware.RateLimiter
	StageLimiter *middleware.RateLimiter

	SecureCookies bool
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(d Deps) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)

	// Probes: no session, no CSRF.
	r.Get("/health", healthHandler)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.LoadSession(d.Sessions))
		r.Use(middleware.NewCSRF(d.SecureCookies))

		r.Route("/auth", func(r chi.Router) {
			r.With(limit(d.LoginLimiter)).Post("/login", d.Auth.Login)
			r.Post("/logout", d.Auth.Logout)

			// 2FA: requires a session but NOT completed 2FA.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)
				r.Get("/me", d.Auth.Me)
				r.Get("/2fa/setup", d.Auth.TwoFASetup)
				r.With(limit(d.LoginLimiter)).Post("/2fa/verify", d.Auth.TwoFAVerify)
			})
		})

		// Authenticated + 2FA-verified studio.
		r.Route("/studio", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.Require2FA)

			r.Get("/", d.Studio.Snapshot)
			r.Get("/stream", d.Stream.Serve)
			r.Put("/screen", d.Studio.Navigate)
			r.Put("/brief", d.Studio.SetBrief)
			r.Put("/post", d.Studio.SetPostText)
			r.Post("/dismiss", d.Studio.DismissError)

			r.Get("/history", d.Studio.History)
			r.Get("/records/{id}", d.Studio.Record)

			// Stages call remote agents.
			r.Group(func(r chi.Router) {
				r.Use(limit(d.StageLimiter))
				r.Post("/draft", d.Studio.Draft)
				r.Post("/visualize", d.Studio.Visualize)
				r.Post("/evaluate", d.Studio.Evaluate)
			})

			r.Route("/schedule", func(r chi.Router) {
				r.Get("/", d.Schedule.Status)
				r.Post("/refresh", d.Schedule.Refresh)
				r.With(limit(d.StageLimiter)).Post("/toggle", d.Schedule.Toggle)
			})
		})
	})

	return r
}

// limit returns rl's middleware, or a pass-through when rl is nil.
func limit(rl *middleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return rl.Middleware
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
