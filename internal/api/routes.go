package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	// Rate limiter for DELETE operations: 100 deletes max, refill 1 per 100ms
	// This allows burst of 100 deletes, then sustained rate of 10/second
	deleteRateLimiter := NewDeleteRateLimiter(100, 100*time.Millisecond)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes: health for probes, webhook authenticated by its
		// own signature check
		r.Get("/health", h.Health)
		r.Post("/webhooks/stripe", h.StripeWebhook)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))

			r.Post("/assistant/plan", h.GeneratePlan)

			r.Route("/users/{userID}", func(r chi.Router) {
				// legacy flat scheme, read-only
				r.Get("/goals/{goalID}", h.GetGoal)

				r.Route("/categories/{categoryID}", func(r chi.Router) {
					r.Get("/", h.GetCategory)
					r.Post("/goals", h.CreateGoal)
					r.Post("/import", h.ImportGoal)

					r.Route("/goals/{goalID}", func(r chi.Router) {
						r.Get("/", h.GetGoal)
						r.Patch("/", h.UpdateGoal)
						r.With(deleteRateLimiter.Middleware).Delete("/", h.DeleteGoal)

						r.Get("/export", h.ExportGoal)
						r.Post("/ratio", h.RecalculateRatio)

						r.Post("/steps", h.CreateStep)
						r.Patch("/steps/{stepID}", h.UpdateStep)
						r.With(deleteRateLimiter.Middleware).Delete("/steps/{stepID}", h.DeleteStep)

						r.Post("/todos", h.CreateTodo)
						r.Patch("/todos/{todoID}", h.UpdateTodo)
						r.With(deleteRateLimiter.Middleware).Delete("/todos/{todoID}", h.DeleteTodo)

						r.Post("/commitment", h.Commit)
						r.Post("/commitment/verify", h.VerifyCommitment)
						r.Delete("/commitment", h.ClearCommitment)
						r.Post("/settlement", h.Settle)
					})
				})
			})
		})
	})

	return r
}
