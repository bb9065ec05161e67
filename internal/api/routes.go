package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.GetStatus)

		// Ingest: the data service posts normalized interaction events here.
		r.Post("/events", h.IngestEvents)

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", h.ListProfiles)
			r.Get("/{key}", h.GetProfile)
			r.Get("/{key}/lead", h.GetLeadScore)
			r.Put("/{key}/vip", h.SetVIP)
			r.Post("/{key}/customer", h.MarkCustomer)
		})

		r.Route("/smartlists", func(r chi.Router) {
			r.Get("/", h.GetSmartLists)
			r.Get("/{list}", h.GetSmartListMembers)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.ListAlerts)
			r.Post("/{id}/dismiss", h.DismissAlert)
			r.Post("/{id}/snooze", h.SnoozeAlert)
			r.Post("/{id}/action", h.AlertAction)
		})

		r.Route("/duplicates", func(r chi.Router) {
			r.Get("/", h.ListDuplicateGroups)
			r.Post("/merge", h.MergeDuplicates)
			r.Post("/dismiss", h.DismissDuplicate)
		})

		r.Post("/refresh", h.Refresh)
	})

	return r
}
