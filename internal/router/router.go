// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router sets up all HTTP routes and middleware chains for the
// taxopress admin API. Routes are grouped by the access level they need:
// session-only for auth/2FA, editor for tree mutations, admin for user
// and cache management.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taxopress/internal/handlers"
	"taxopress/internal/middleware"
	"taxopress/internal/session"
)

// New creates and returns the configured Chi router with all middleware
// and route groups wired up. Stop() on the returned limiter is the
// caller's responsibility at shutdown.
func New(
	sessionStore *session.Store,
	auth *handlers.Auth,
	categories *handlers.Categories,
	users *handlers.Users,
	cachectl *handlers.CacheCtl,
	loginLimiter *middleware.RateLimiter,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware — applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.LoadSession(sessionStore))

	// Health check and metrics — no auth, no CSRF.
	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/admin/api", func(r chi.Router) {
		r.Use(middleware.CSRF)

		// Login — rate limited, accessible without a session.
		r.With(loginLimiter.Middleware).Post("/login", auth.Login)
		r.Post("/logout", auth.Logout)

		// 2FA — requires auth but NOT completed 2FA.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Post("/2fa/setup", auth.TwoFASetup)
			r.Post("/2fa/verify", auth.TwoFAVerify)
		})

		// Authenticated + 2FA-verified API.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.Require2FA)

			r.Get("/me", auth.Me)

			// Category reads — any authenticated role.
			r.Route("/categories", func(r chi.Router) {
				r.Get("/", categories.List)
				r.Get("/tree", categories.Tree)
				r.Get("/deleted", categories.Deleted)
				r.Get("/{id}", categories.Get)
				r.Get("/{id}/children", categories.Children)
				r.Get("/{id}/subtree", categories.Subtree)

				// Mutations — editor and above.
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireEditor)
					r.Post("/", categories.Create)
					r.Post("/reorder", categories.Reorder)
					r.Put("/{id}", categories.Update)
					r.Post("/{id}/move", categories.Move)
					r.Delete("/{id}", categories.Delete)
					r.Post("/{id}/restore", categories.Restore)
					r.Delete("/{id}/purge", categories.Purge)
				})
			})

			// User management — admin only.
			r.Route("/users", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/", users.List)
				r.Post("/", users.Create)
				r.Post("/{id}/reset-2fa", users.ResetTwoFA)
				r.Delete("/{id}", users.Delete)
			})

			// Cache operations — admin only.
			r.Route("/cache", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/flush", cachectl.Flush)
				r.Get("/log", cachectl.Log)
			})
		})
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
