// Package router wires handlers and middleware into the HTTP surface.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"case-market/internal/handler"
	"case-market/internal/middleware"
)

// Config holds the router dependencies.
type Config struct {
	Handler        *handler.Handler
	CaseHandler    *handler.CaseHandler
	GameHandler    *handler.GameHandler
	ProfileHandler *handler.ProfileHandler
	Identity       func(http.Handler) http.Handler
	AllowedOrigins []string
}

// New creates the HTTP router.
func New(cfg Config) *chi.Mux {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Group(func(r chi.Router) {
		if cfg.Identity != nil {
			r.Use(cfg.Identity)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
			}

			// Public catalog; the caller's profile is optional.
			if cfg.CaseHandler != nil {
				r.Get("/cases", cfg.CaseHandler.List)
				r.Get("/cases/search", cfg.CaseHandler.Search)
				r.Get("/cases/{slug}", cfg.CaseHandler.Detail)
				r.Get("/items/targets", cfg.CaseHandler.Targets)
			}

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireProfile)

				if cfg.GameHandler != nil {
					r.Post("/cases/{slug}/spin", cfg.GameHandler.Spin)
					r.Post("/upgrades", cfg.GameHandler.Upgrade)
					r.Post("/contracts", cfg.GameHandler.Contract)
				}

				if cfg.ProfileHandler != nil {
					r.Get("/profile", cfg.ProfileHandler.Get)
					r.Put("/profile/trade-url", cfg.ProfileHandler.UpdateTradeURL)
					r.Post("/inventory/sell", cfg.ProfileHandler.Sell)
					r.Get("/withdrawals", cfg.ProfileHandler.ListWithdrawals)
					r.Post("/withdrawals", cfg.ProfileHandler.Withdraw)
					r.Post("/withdrawals/poll", cfg.ProfileHandler.PollWithdrawals)
				}
			})
		})
	})

	return r
}
