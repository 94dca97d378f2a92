// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes page graph queries for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/pagegraph/internal/graph"
	"github.com/starford/pagegraph/internal/graphservice"
	"github.com/starford/pagegraph/internal/index"
)

const (
	formatURI          = "pagegraph://page-format"
	defaultSearchLimit = 20
)

// Searcher runs full-text queries over block content.
type Searcher interface {
	Search(query string, limit int) ([]index.SearchResult, error)
}

// Server wraps the MCP server with the graph tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *graphservice.Service
	search Searcher
}

// New creates a new MCP server with all tools registered. search may be nil,
// in which case search_blocks reports an error.
func New(svc *graphservice.Service, search Searcher, version string) *Server {
	s := &Server{svc: svc, search: search}

	s.mcp = server.NewMCPServer(
		"pagegraph",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_blocks",
		mcp.WithDescription("Full-text search through block content and page titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (default 20)")),
	), s.searchBlocks)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read a page as JSON: frontmatter, nested block tree, outbound links and backlinks."),
		mcp.WithString("page", mcp.Required(), mcp.Description("Page path (e.g. pages/topic), title or alias")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List every page with its title, tags and block count."),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all references to the specified page. "+
			"Pass unresolved:<name> to find references to a page that does not exist."),
		mcp.WithString("page", mcp.Required(), mcp.Description("Page path, title, alias or unresolved sentinel")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("traverse",
		mcp.WithDescription("List the pages reachable from a start page in breadth-first or depth-first order."),
		mcp.WithString("start", mcp.Required(), mcp.Description("Start page")),
		mcp.WithString("mode", mcp.Description("Traversal order"), mcp.Enum("bfs", "dfs")),
		mcp.WithNumber("max_depth", mcp.Description("Depth limit, 0 for none")),
	), s.traverse)

	s.mcp.AddTool(mcp.NewTool("shortest_path",
		mcp.WithDescription("Find the shortest chain of links from one page to another."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Source page")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Target page")),
	), s.shortestPath)

	s.mcp.AddTool(mcp.NewTool("page_rank",
		mcp.WithDescription("Rank pages by PageRank over the link graph."),
		mcp.WithNumber("top", mcp.Description("Number of pages to return (default 10, 0 for all)")),
	), s.pageRank)

	s.mcp.AddTool(mcp.NewTool("find_cycles",
		mcp.WithDescription("Find link cycles. Without start, returns strongly connected groups of pages."),
		mcp.WithString("start", mcp.Description("Only report cycles reachable from this page")),
	), s.findCycles)

	s.mcp.AddTool(mcp.NewTool("list_orphans",
		mcp.WithDescription("List pages with no links in either direction."),
	), s.listOrphans)

	s.mcp.AddTool(mcp.NewTool("graph_stats",
		mcp.WithDescription("Summary counts: pages, blocks, links, dangling links, orphans, namespaces and warnings."),
	), s.graphStats)

	s.mcp.AddTool(mcp.NewTool("get_page_format",
		mcp.WithDescription("Returns the page format reference: outline blocks, properties and link syntax."),
	), s.getPageFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Page Format",
			mcp.WithResourceDescription("Outline page syntax understood by the graph parser."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPageFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// page resolves a path, title or alias argument.
func (s *Server) page(req mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	name, err := req.RequireString(key)
	if err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	path, err := s.svc.Resolve(name)
	if err != nil {
		return "", mcp.NewToolResultError(fmt.Sprintf("page not found: %s", name))
	}
	return path, nil
}

func (s *Server) searchBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.search == nil {
		return mcp.NewToolResultError("search index disabled"), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	hits, err := s.search.Search(query, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results := make([]index.SearchResult, 0, len(hits))
	for _, h := range hits {
		if s.svc.Visible(h.Path) {
			results = append(results, h)
		}
	}
	return jsonResult(results)
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, fail := s.page(req, "page")
	if fail != nil {
		return fail, nil
	}
	detail, err := s.svc.PageDetail(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("page not found: %s", path)), nil
	}
	return jsonResult(detail)
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Pages())
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("page")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path := name
	if !graph.IsSentinel(name) {
		var fail *mcp.CallToolResult
		if path, fail = s.page(req, "page"); fail != nil {
			return fail, nil
		}
	}
	links, err := s.svc.Backlinks(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := links[:0:0]
	for _, b := range links {
		if s.svc.Visible(b.Source) {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return jsonResult(out)
}

func (s *Server) traverse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, fail := s.page(req, "start")
	if fail != nil {
		return fail, nil
	}
	mode, err := graph.ParseMode(req.GetString("mode", "bfs"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	depth := req.GetInt("max_depth", 0)
	if depth < 0 {
		return mcp.NewToolResultError("max_depth must not be negative"), nil
	}
	pages, err := s.svc.Traverse(start, mode, depth)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(pages)
}

func (s *Server) shortestPath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, fail := s.page(req, "from")
	if fail != nil {
		return fail, nil
	}
	to, fail := s.page(req, "to")
	if fail != nil {
		return fail, nil
	}
	path, err := s.svc.ShortestPath(from, to)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if path == nil {
		return mcp.NewToolResultText(fmt.Sprintf("no path from %s to %s", from, to)), nil
	}
	return jsonResult(path)
}

func (s *Server) pageRank(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	top := req.GetInt("top", 10)
	var out []graph.RankedPage
	for _, p := range s.svc.Rank().Top(0) {
		if !s.svc.Visible(p.Path) {
			continue
		}
		out = append(out, p)
		if top > 0 && len(out) == top {
			break
		}
	}
	return jsonResult(out)
}

func (s *Server) findCycles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var opts graph.CycleOptions
	if req.GetString("start", "") != "" {
		start, fail := s.page(req, "start")
		if fail != nil {
			return fail, nil
		}
		opts.Start = start
	}
	cycles, err := s.svc.Cycles(opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(cycles) == 0 {
		return mcp.NewToolResultText("no cycles found"), nil
	}
	return jsonResult(cycles)
}

func (s *Server) listOrphans(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := []string{}
	for _, p := range s.svc.Orphans() {
		if s.svc.Visible(p) {
			out = append(out, p)
		}
	}
	return jsonResult(out)
}

func (s *Server) graphStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Stats())
}

func (s *Server) getPageFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PageFormat), nil
}

func (s *Server) readPageFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     PageFormat,
		},
	}, nil
}
