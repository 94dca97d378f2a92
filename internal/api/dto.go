package api

import (
	"github.com/starford/pagegraph/internal/export"
	"github.com/starford/pagegraph/internal/graph"
	"github.com/starford/pagegraph/internal/graphservice"
	"github.com/starford/pagegraph/internal/models"
)

// PageDetail is the full page response type (aliased from the domain layer).
type PageDetail = graphservice.PageDetail

// PageListItem is a lightweight item in a list response (aliased from the domain layer).
type PageListItem = graphservice.PageSummary

// PageListResponse wraps page listings.
type PageListResponse struct {
	Pages []PageListItem `json:"pages" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// BacklinksResponse lists the inbound references of a page.
type BacklinksResponse struct {
	Path      string           `json:"path" example:"pages/target.md" validate:"required"`
	Backlinks []graph.Backlink `json:"backlinks" validate:"required"`
}

// ResolveResponse maps a page name to its canonical path.
type ResolveResponse struct {
	Name string `json:"name" example:"My Page" validate:"required"`
	Path string `json:"path" example:"pages/my page.md" validate:"required"`
}

// TraverseResponse lists pages in visit order.
type TraverseResponse struct {
	Start string   `json:"start" example:"pages/index.md" validate:"required"`
	Mode  string   `json:"mode" example:"bfs" validate:"required"`
	Pages []string `json:"pages" validate:"required"`
}

// PathResponse is a shortest path between two pages. Found is false and
// Path empty when the target is unreachable.
type PathResponse struct {
	From  string   `json:"from" example:"pages/a.md" validate:"required"`
	To    string   `json:"to" example:"pages/c.md" validate:"required"`
	Found bool     `json:"found" validate:"required"`
	Path  []string `json:"path" validate:"required"`
}

// RankResponse lists pages by PageRank score.
type RankResponse struct {
	Iterations int                `json:"iterations" example:"23" validate:"required"`
	Converged  bool               `json:"converged" validate:"required"`
	Pages      []graph.RankedPage `json:"pages" validate:"required"`
}

// CyclesResponse lists detected cycles, or strongly connected components in
// whole-graph mode.
type CyclesResponse struct {
	Cycles [][]string `json:"cycles" validate:"required"`
}

// OrphansResponse lists pages with no links in either direction.
type OrphansResponse struct {
	Pages []string `json:"pages" validate:"required"`
}

// WarningsResponse lists parse and build warnings.
type WarningsResponse struct {
	Warnings []models.Warning `json:"warnings" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"pages/hello.md" validate:"required"`
	Title   string `json:"title" example:"Hello" validate:"required"`
	BlockID string `json:"block_id,omitempty" example:"650e5c1b-..."`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// GraphResponse is the full export document.
type GraphResponse = export.Document
