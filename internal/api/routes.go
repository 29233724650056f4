package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/stayadmin/internal/pkg/httputil"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes. allowedOrigins falls back to the
// local admin UI origins when empty.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if h.health != nil {
		r.Get("/health", h.health.HandleHealth)
		r.Get("/health/ready", h.health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			httputil.OK(w, map[string]string{"status": "healthy"})
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/triggers", func(r chi.Router) {
			r.Get("/", h.ListTriggers)
			r.Post("/", h.CreateTrigger)
			r.Get("/{id}", h.GetTrigger)
			r.Put("/{id}", h.UpdateTrigger)
			r.Delete("/{id}", h.DeleteTrigger)
		})

		r.Route("/bookings/{bookingID}", func(r chi.Router) {
			r.Post("/triggers/{type}/process", h.ProcessTriggers)
			r.Get("/triggers/{type}/evaluate", h.EvaluateTriggers)
			r.Get("/triggers/{type}/matching", h.MatchingTriggers)
			r.Get("/merge-tags", h.MergeTags)
			r.Get("/fire-history", h.FireHistory)
			r.Get("/templates/{ref}/preview", h.PreviewTemplate)
		})

		r.Post("/templates/validate", h.ValidateTemplate)
	})

	return r
}
