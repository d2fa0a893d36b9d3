/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, included in request logs
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logger:     zap request logging (level by status)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/health           Liveness + backend ping
  /api/attendance/*     Punches, admin corrections, auto-close, audit
  /api/users/*          Per-user history and reconciliation
  /api/reconciliation/* Daily discrepancy report
  /api/work-records     Work record ingest
  /api/break-rules      Rule-set administration
  /api/admin/*          Batch operations
  /api/audit            Audit query
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware. Deploy behind an authenticating proxy.

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
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/attendance", func(r chi.Router) {
			r.Post("/clock-in", h.ClockIn)
			r.Post("/clock-out", h.ClockOut)
			r.Get("/{id}", h.GetAttendance)
			r.Patch("/{id}", h.EditAttendance)
			r.Delete("/{id}", h.DeleteAttendance)
			r.Post("/{id}/corrections", h.CorrectAttendance)
			r.Post("/{id}/auto-close", h.AutoCloseAttendance)
			r.Get("/{id}/audit", h.AttendanceAudit)
		})

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/attendance", h.UserAttendance)
			r.Get("/attendance/open", h.UserOpenAttendance)
			r.Get("/reconciliation", h.UserReconciliation)
			r.Get("/work-records", h.UserWorkRecords)
		})

		r.Get("/reconciliation/discrepancies", h.Discrepancies)
		r.Post("/work-records", h.CreateWorkRecord)

		r.Get("/break-rules", h.GetBreakRules)
		r.Put("/break-rules", h.PutBreakRules)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/auto-close", h.TriggerAutoClose)
			r.Post("/recalculate", h.TriggerRecalculation)
			r.Get("/recalculation-runs", h.ListRecalculationRuns)
		})

		r.Get("/audit", h.QueryAudit)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Code: "route_not_found", Message: "No route for " + r.Method + " " + r.URL.Path})
	})

	return r
}
