package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. Middleware in
// writeMW wraps only state-changing plan routes (idempotency, for example).
func MountRoutes(r chi.Router, h *Handlers, writeMW ...func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Plans
		r.Get("/plans", h.ListPlans)
		r.Get("/plans/{id}", h.GetPlan)
		r.Get("/plans/{id}/graph", h.GetPlanGraph)
		r.Get("/plans/{id}/complete", h.IsComplete)
		r.Get("/plans/{id}/results", h.ListResults)
		r.Get("/plans/{id}/feedback", h.ListFeedback)

		// Scheduling queries are POST for the completed-set body but read-only.
		r.Post("/plans/{id}/ready", h.ReadyTasks)
		r.Post("/plans/{id}/parallel", h.ParallelGroups)

		r.Group(func(r chi.Router) {
			r.Use(writeMW...)

			r.Post("/plans", h.GeneratePlan)
			r.Post("/plans/raw", h.CreateRawPlan)
			r.Post("/plans/{id}/results", h.RecordResult)
			r.Post("/plans/{id}/execute", h.ExecutePlan)
			r.Post("/plans/{id}/cancel", h.CancelPlan)
			r.Post("/plans/{id}/feedback", h.AddFeedback)
			r.Post("/plans/{id}/adapt", h.AdaptPlan)
		})
	})
}
