/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the ops console

ROUTE GROUPS:
  /api/rulesets/*       Split configuration versions
  /api/split            What-if split computation
  /api/deliveries/*     Delivery earnings
  /api/drivers/*        Driver totals and validation
  /api/admin/*          Sweeps, bulk recalculation, reports
  /api/audit            Anomaly trail
  /*                    Plain HTML endpoint index

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.
  This service is meant to sit behind the platform gateway.

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
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Rule set routes
		r.Route("/rulesets", func(r chi.Router) {
			r.Get("/", h.ListRuleSets)
			r.Post("/", h.CreateRuleSet)
			r.Get("/active", h.GetActiveRuleSet)
			r.Get("/{id}", h.GetRuleSet)
			r.Put("/{id}", h.UpdateRuleSet)
			r.Post("/{id}/activate", h.ActivateRuleSet)
			r.Delete("/{id}", h.DeleteRuleSet)
		})

		// What-if split computation
		r.Post("/split", h.ComputeSplit)

		// Delivery routes
		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/{id}", h.GetDelivery)
			r.Post("/{id}/delivered", h.DeliveryDelivered)
			r.Post("/{id}/earnings", h.EnsureEarnings)
		})

		// Driver routes
		r.Route("/drivers", func(r chi.Router) {
			r.Get("/", h.ListDrivers)
			r.Get("/{id}", h.GetDriver)
			r.Get("/{id}/deliveries", h.ListDriverDeliveries)
			r.Post("/{id}/validate", h.ValidateDriver)
			r.Post("/{id}/fix", h.FixDriver)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/recalculate", h.BulkRecalculate)
			r.Post("/validate-all", h.ValidateAll)
			r.Post("/fix-all", h.FixAll)
			r.Get("/drift-report.xlsx", h.DriftReport)
			r.Get("/sweeps", h.ListSweepRuns)
			r.Get("/sweeps.xlsx", h.SweepHistoryReport)
		})

		// Audit routes
		r.Get("/audit", h.QueryAudit)
	})

	// There is no frontend; the root serves a plain endpoint index so a
	// browser hitting the service sees something useful.
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Earnings Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Earnings Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/rulesets">/api/rulesets</a> - List rule set versions</li>
<li><a href="/api/rulesets/active">/api/rulesets/active</a> - Active rule set</li>
<li><a href="/api/drivers">/api/drivers</a> - List drivers</li>
<li><a href="/api/admin/sweeps">/api/admin/sweeps</a> - Sweep history</li>
<li><a href="/api/audit">/api/audit</a> - Anomaly trail</li>
</ul>
</body>
</html>`))
	})

	return r
}
