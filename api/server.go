/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions. This
  is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Permissive headers; OPTIONS preflight answers with a bare
                 200 so browser dashboards can call the triggers directly

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
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Client-Info", "Apikey"},
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/settlements", func(r chi.Router) {
			r.Post("/short-cycle/run", h.RunShortCycle)
			r.Post("/long-cycle/run", h.RunLongCycle)
			r.Get("/", h.ListSettlements)
			r.Get("/{id}", h.GetSettlement)
		})

		r.Get("/wallets", h.ListWallets)
	})

	// Prometheus metrics
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
