/*
server.go - HTTP router and middleware configuration

PURPOSE:

	Configures the HTTP router (chi), middleware stack, and route
	definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
 1. Logger:     Request logging
 2. Recoverer:  Panic recovery (500 instead of crash)
 3. RequestID:  Unique ID per request for tracing
 4. CORS:       Cross-origin requests for frontend
 5. Auth:       JWT bearer verification (everything under /api except login)

ROUTE GROUPS:

	/api/auth/login  Token issuance (public)
	/api/assets/*    Registry, intake, history, dealer returns, purge
	/api/orders/*    Order fulfillment state machine
	/api/demos/*     Demo loan state machine
	/api/import      Bulk spreadsheet intake
	/api/discrepancies  Ledger/registry audit

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/trackline/inventory-engine/auth"
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

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		// Everything else requires a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(h.Config.JWTSecret))

			r.Route("/assets", func(r chi.Router) {
				r.Get("/", h.ListAssets)
				r.Post("/", h.CreateAsset)
				r.Get("/{serial}", h.GetAsset)
				r.Get("/{serial}/entries", h.GetAssetEntries)
				r.Post("/{serial}/return", h.RecordDealerReturn)
				r.Delete("/{serial}", h.DeleteAsset)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListOrders)
				r.Post("/", h.CreateOrder)
				r.Get("/{orderNumber}", h.GetOrder)
				r.Post("/{orderNumber}/documents", h.ApplyDocumentEvent)
				r.Delete("/{orderNumber}", h.DeleteOrder)
			})

			r.Route("/demos", func(r chi.Router) {
				r.Get("/", h.ListDemos)
				r.Post("/", h.CreateDemo)
				r.Get("/{demoNumber}", h.GetDemo)
				r.Post("/{demoNumber}/returns", h.ReturnDemoItems)
			})

			r.Post("/import", h.ImportSpreadsheet)
			r.Get("/discrepancies", h.GetDiscrepancies)
		})
	})

	return r
}
