// Package api assembles the HTTP router of the Product Helper control
// plane: the public health endpoints, the token-guarded admin REST
// surface, and the key-guarded MCP protocol endpoint.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/producthelper/producthelper/internal/api/handlers"
	"github.com/producthelper/producthelper/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(h *handlers.Handlers, admin *middleware.AdminAuth, keys *middleware.KeyAuth) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", h.Health)
	r.Get("/version", h.VersionInfo)

	// Admin REST surface
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(admin.Middleware)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", h.ListProjects)
			r.Post("/", h.CreateProject)

			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", h.GetProject)

				r.Route("/keys", func(r chi.Router) {
					r.Get("/", h.ListKeys)
					r.Post("/", h.GenerateKey)
					r.Delete("/{keyID}", h.RevokeKey)
				})

				r.Route("/documents", func(r chi.Router) {
					r.Get("/", h.ListDocuments)
					r.Route("/{slug}", func(r chi.Router) {
						r.Get("/", h.GetDocument)
						r.Put("/", h.PutDocument)
						r.Delete("/", h.DeleteDocument)
					})
				})

				r.Get("/audit", h.ListAudit)
			})
		})
	})

	// MCP protocol endpoint. The key-auth gate validates the bearer key
	// against the path project and applies the per-prefix rate limit
	// before any JSON-RPC parsing happens.
	r.Route("/mcp/{projectID}", func(r chi.Router) {
		r.Use(keys.Middleware)
		r.Post("/", h.MCPEndpoint)
	})

	return r
}
