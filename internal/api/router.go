package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/pagegraph/internal/graphservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// search may be nil, in which case /search answers 503.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *graphservice.Service, search Searcher, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, search)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Pages.
	r.Get("/pages", h.ListPages)
	r.Get("/pages/*", h.GetPage)
	r.Get("/backlinks/*", h.Backlinks)
	r.Get("/resolve", h.Resolve)

	// Algorithms.
	r.Get("/traverse", h.Traverse)
	r.Get("/path", h.ShortestPath)
	r.Get("/rank", h.Rank)
	r.Get("/cycles", h.Cycles)
	r.Get("/orphans", h.Orphans)

	// Whole graph.
	r.Get("/stats", h.Stats)
	r.Get("/warnings", h.Warnings)
	r.Get("/graph", h.Graph)

	// Search.
	r.Get("/search", h.Search)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
