/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Context:    zerolog logger carrying request_id, read via logger.FromContext
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/requests/*       OT request lifecycle
  /api/rates/*          Rate quotes
  /api/calendar/*       Holiday consolidation
  /api/policy           Submission policy
  /api/admin/*          Admin operations
  /api/health           Liveness

SECURITY NOTE:
  No authentication middleware. Deploy behind a gateway that authenticates
  the caller and fills actor_id and role.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// NewRouter creates a new router with all routes configured. An empty origins
// list allows every origin.
func NewRouter(h *Handler, log zerolog.Logger, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Request lifecycle routes
		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListRequests)
			r.Post("/", h.SubmitRequest)
			r.Post("/approve-batch", h.ApproveBatch)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRequest)
				r.Put("/", h.AmendRequest)
				r.Post("/resubmit", h.ResubmitRequest)
				r.Get("/actions", h.ListActions)
				r.Get("/audit", h.GetAuditTrail)

				r.Post("/confirm-respective", h.ConfirmRespective)
				r.Post("/confirm", h.ConfirmRequest)
				r.Post("/verify", h.VerifyRequest)
				r.Post("/certify", h.CertifyRequest)
				r.Post("/approve", h.ApproveRequest)
				r.Post("/reject", h.RejectRequest)
				r.Post("/return", h.ReturnRequest)
				r.Post("/revert", h.RevertRequest)
			})
		})

		r.Post("/rates/quote", h.QuoteRate)
		r.Get("/submission-window", h.CheckSubmissionWindow)

		// Calendar routes
		r.Route("/calendar", func(r chi.Router) {
			r.Get("/", h.GetCalendar)
			r.Post("/events", h.CreateCalendarEvent)
		})

		// Policy routes
		r.Get("/policy", h.GetPolicy)
		r.Put("/policy", h.UpdatePolicy)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger puts a child of log tagged with the chi request id into the
// request context.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := log.With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()
			next.ServeHTTP(w, r.WithContext(l.WithContext(r.Context())))
		})
	}
}
