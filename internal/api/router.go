package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bok/internal/nodeservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *nodeservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Nodes.
	r.Get("/nodes", h.Tree)
	r.Get("/nodes/flat", h.Flat)
	r.Post("/nodes", h.CreateNode)
	r.Get("/nodes/{id}", h.GetNode)
	r.Delete("/nodes/{id}", h.DeleteNode)

	// Import.
	r.Post("/import", h.Import)

	// Search.
	r.Get("/search", h.Search)

	// Visualisation exports.
	r.Get("/vis/d3", h.VisD3)
	r.Get("/vis/mermaid", h.VisMermaid)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
