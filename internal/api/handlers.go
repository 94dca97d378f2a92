package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/pagegraph/internal/checksum"
	"github.com/starford/pagegraph/internal/graph"
	"github.com/starford/pagegraph/internal/graphservice"
	"github.com/starford/pagegraph/internal/index"
)

const defaultSearchLimit = 20

// Searcher runs full-text queries over block content.
type Searcher interface {
	Search(query string, limit int) ([]index.SearchResult, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc    *graphservice.Service
	search Searcher
}

// NewHandler creates a new Handler.
func NewHandler(svc *graphservice.Service, search Searcher) *Handler {
	return &Handler{svc: svc, search: search}
}

// pagePath extracts the page path from the URL (everything after the route
// prefix). Supports encoded slashes from OpenAPI clients (e.g. pages%2Fa.md).
func pagePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// lookup turns a path, title or alias into a canonical page path and writes
// the error response when it cannot.
func (h *Handler) lookup(w http.ResponseWriter, param, name string) (string, bool) {
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody(param+" is required"))
		return "", false
	}
	path, err := h.svc.Resolve(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("page not found: "+name))
		return "", false
	}
	return path, true
}

// ListPages handles GET /api/pages.
//
//	@Summary		List pages
//	@Tags			pages
//	@Produce		json
//	@Param			tag	query		string	false	"Filter by tag"
//	@Success		200	{object}	PageListResponse
//	@Security		BearerAuth
//	@Router			/pages [get]
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	tag := strings.ToLower(r.URL.Query().Get("tag"))
	items := h.svc.Pages()
	if tag != "" {
		filtered := items[:0]
		for _, it := range items {
			for _, t := range it.Tags {
				if strings.ToLower(t) == tag {
					filtered = append(filtered, it)
					break
				}
			}
		}
		items = filtered
	}
	writeJSON(w, http.StatusOK, PageListResponse{Pages: items, Total: len(items)})
}

// GetPage handles GET /api/pages/*.
//
//	@Summary		Get a page with its block tree and backlinks
//	@Tags			pages
//	@Produce		json
//	@Param			path			path		string	true	"Page path, title or alias"
//	@Param			If-None-Match	header		string	false	"ETag from a previous response"
//	@Success		200				{object}	PageDetail
//	@Success		304				"Not modified"
//	@Failure		404				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{path} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	path, ok := h.lookup(w, "path", pagePath(r))
	if !ok {
		return
	}
	page, err := h.svc.PageDetail(path)
	if err != nil {
		writeError(w, "get page", err)
		return
	}
	// Backlinks and links change with other pages, so the validator covers
	// the encoded body, not the page source.
	body, err := json.Marshal(page)
	if err != nil {
		writeError(w, "get page", err)
		return
	}
	etag := `"` + checksum.Short(checksum.Sum(body)) + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeBody(w, http.StatusOK, body)
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		List the inbound references of a page
//	@Description	Accepts unresolved:<name> sentinels to list references to missing pages.
//	@Tags			pages
//	@Produce		json
//	@Param			path	path		string	true	"Page path, title, alias or sentinel"
//	@Success		200		{object}	BacklinksResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backlinks/{path} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path := pagePath(r)
	if !graph.IsSentinel(path) {
		var ok bool
		if path, ok = h.lookup(w, "path", path); !ok {
			return
		}
	}
	links, err := h.svc.Backlinks(path)
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	visible := links[:0:0]
	for _, b := range links {
		if h.svc.Visible(b.Source) {
			visible = append(visible, b)
		}
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Path: path, Backlinks: visible})
}

// Resolve handles GET /api/resolve.
//
//	@Summary		Resolve a title or alias to a page path
//	@Tags			pages
//	@Produce		json
//	@Param			name	query		string	true	"Page title or alias"
//	@Success		200		{object}	ResolveResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resolve [get]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	path, ok := h.lookup(w, "name", name)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ResolveResponse{Name: name, Path: path})
}

// Traverse handles GET /api/traverse.
//
//	@Summary		Walk the graph from a page
//	@Tags			algorithms
//	@Produce		json
//	@Param			start		query		string	true	"Start page"
//	@Param			mode		query		string	false	"Traversal order"	Enums(bfs, dfs)
//	@Param			max_depth	query		int		false	"Depth limit, 0 for none"
//	@Success		200			{object}	TraverseResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/traverse [get]
func (h *Handler) Traverse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, ok := h.lookup(w, "start", q.Get("start"))
	if !ok {
		return
	}
	mode := graph.BFS
	if m := q.Get("mode"); m != "" {
		var err error
		if mode, err = graph.ParseMode(m); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}
	maxDepth := 0
	if d := q.Get("max_depth"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("max_depth must be a non-negative integer"))
			return
		}
		maxDepth = n
	}
	pages, err := h.svc.Traverse(start, mode, maxDepth)
	if err != nil {
		writeError(w, "traverse", err)
		return
	}
	writeJSON(w, http.StatusOK, TraverseResponse{Start: start, Mode: mode.String(), Pages: pages})
}

// ShortestPath handles GET /api/path.
//
//	@Summary		Shortest link path between two pages
//	@Tags			algorithms
//	@Produce		json
//	@Param			from	query		string	true	"Source page"
//	@Param			to		query		string	true	"Target page"
//	@Success		200		{object}	PathResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/path [get]
func (h *Handler) ShortestPath(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, ok := h.lookup(w, "from", q.Get("from"))
	if !ok {
		return
	}
	to, ok := h.lookup(w, "to", q.Get("to"))
	if !ok {
		return
	}
	path, err := h.svc.ShortestPath(from, to)
	if err != nil {
		writeError(w, "shortest path", err)
		return
	}
	resp := PathResponse{From: from, To: to, Found: path != nil, Path: path}
	if resp.Path == nil {
		resp.Path = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Rank handles GET /api/rank.
//
//	@Summary		Pages ordered by PageRank
//	@Tags			algorithms
//	@Produce		json
//	@Param			top	query		int	false	"Number of pages, 0 for all"
//	@Success		200	{object}	RankResponse
//	@Security		BearerAuth
//	@Router			/rank [get]
func (h *Handler) Rank(w http.ResponseWriter, r *http.Request) {
	top, _ := strconv.Atoi(r.URL.Query().Get("top"))
	rank := h.svc.Rank()
	pages := make([]graph.RankedPage, 0, len(rank.Scores))
	for _, p := range rank.Top(0) {
		if !h.svc.Visible(p.Path) {
			continue
		}
		pages = append(pages, p)
		if top > 0 && len(pages) == top {
			break
		}
	}
	writeJSON(w, http.StatusOK, RankResponse{
		Iterations: rank.Iterations,
		Converged:  rank.Converged,
		Pages:      pages,
	})
}

// Cycles handles GET /api/cycles.
//
//	@Summary		Detect link cycles
//	@Description	Without start, reports strongly connected components. With fail=true any finding answers 409.
//	@Tags			algorithms
//	@Produce		json
//	@Param			start	query		string	false	"Only cycles reachable from this page"
//	@Param			fail	query		bool	false	"Answer 409 when a cycle exists"
//	@Success		200		{object}	CyclesResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	CyclesResponse
//	@Security		BearerAuth
//	@Router			/cycles [get]
func (h *Handler) Cycles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var opts graph.CycleOptions
	if s := q.Get("start"); s != "" {
		start, ok := h.lookup(w, "start", s)
		if !ok {
			return
		}
		opts.Start = start
	}
	opts.FailOnCycle, _ = strconv.ParseBool(q.Get("fail"))

	cycles, err := h.svc.Cycles(opts)
	var cerr *graph.CycleError
	if errors.As(err, &cerr) {
		writeJSON(w, http.StatusConflict, CyclesResponse{Cycles: cerr.Cycles})
		return
	}
	if err != nil {
		writeError(w, "cycles", err)
		return
	}
	if cycles == nil {
		cycles = [][]string{}
	}
	writeJSON(w, http.StatusOK, CyclesResponse{Cycles: cycles})
}

// Orphans handles GET /api/orphans.
//
//	@Summary		Pages with no links in either direction
//	@Tags			algorithms
//	@Produce		json
//	@Success		200	{object}	OrphansResponse
//	@Security		BearerAuth
//	@Router			/orphans [get]
func (h *Handler) Orphans(w http.ResponseWriter, r *http.Request) {
	pages := []string{}
	for _, p := range h.svc.Orphans() {
		if h.svc.Visible(p) {
			pages = append(pages, p)
		}
	}
	writeJSON(w, http.StatusOK, OrphansResponse{Pages: pages})
}

// Stats handles GET /api/stats.
//
//	@Summary		Graph statistics
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	graph.Stats
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

// Warnings handles GET /api/warnings.
//
//	@Summary		Parse and build warnings
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	WarningsResponse
//	@Security		BearerAuth
//	@Router			/warnings [get]
func (h *Handler) Warnings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, WarningsResponse{Warnings: h.svc.Warnings()})
}

// Graph handles GET /api/graph.
//
//	@Summary		Export the whole graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Document())
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across blocks
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("search index disabled"))
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	hits, err := h.search.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		if !h.svc.Visible(hit.Path) {
			continue
		}
		results = append(results, SearchResult{
			Path:    hit.Path,
			Title:   hit.Title,
			BlockID: hit.BlockID,
			Snippet: hit.Snippet,
		})
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
