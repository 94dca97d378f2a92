// Package graph aggregates parsed pages into a directed page graph and runs
// structural queries over it.
//
// A Graph is single-writer, multiple-reader: Apply must not run concurrently
// with any other method. Callers that mix updates and queries serialize
// updates themselves.
package graph

import (
	"slices"
	"sort"
	"strings"

	"github.com/starford/pagegraph/internal/models"
	"github.com/starford/pagegraph/internal/parser"
)

// SentinelPrefix marks the pseudo-path of a page that does not exist.
const SentinelPrefix = "unresolved:"

// Sentinel returns the pseudo-path standing in for an unresolved name.
func Sentinel(name string) string { return SentinelPrefix + name }

// IsSentinel reports whether path is a dangling-link placeholder.
func IsSentinel(path string) bool { return strings.HasPrefix(path, SentinelPrefix) }

// Edge is one page-level reference. Multiple edges between the same pair are
// kept, one per occurrence.
type Edge struct {
	Source string           `json:"source"`
	Target string           `json:"target"`
	Ref    models.Reference `json:"ref"`
}

// UnresolvedRef is a block reference whose target id was not found.
type UnresolvedRef struct {
	Page string           `json:"page"`
	Ref  models.Reference `json:"ref"`
}

// Graph is the aggregate of pages, edges and the indexes derived from them.
type Graph struct {
	opts parser.Options

	pages map[string]*models.Page
	// edges holds outbound edges per source in registration order.
	edges map[string][]Edge
	// unresolved holds dangling block references per source page.
	unresolved map[string][]models.Reference

	aliases *aliasIndex
	// blockOwners maps a block id to the sorted paths of pages holding it.
	blockOwners map[string][]string

	backlinks      map[string][]Backlink
	backlinksStale bool
}

// New returns an empty graph that parses deltas with opts.
func New(opts parser.Options) *Graph {
	return &Graph{
		opts:        opts,
		pages:       make(map[string]*models.Page),
		edges:       make(map[string][]Edge),
		unresolved:  make(map[string][]models.Reference),
		aliases:     newAliasIndex(),
		blockOwners: make(map[string][]string),
		backlinks:   make(map[string][]Backlink),
	}
}

// Build constructs a graph from already parsed pages. Pages are registered in
// lexicographic path order so alias collisions resolve the same way no matter
// how the input was produced. A later page with a duplicate path replaces the
// earlier one.
func Build(pages []*models.Page, opts parser.Options) *Graph {
	g := New(opts)

	sorted := slices.Clone(pages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for _, p := range sorted {
		g.pages[p.Path] = p
	}

	paths := g.Paths()
	for _, path := range paths {
		p := g.pages[path]
		g.aliases.register(p)
		g.registerBlocks(p)
	}
	for _, path := range paths {
		g.registerEdges(g.pages[path])
	}
	g.RefreshBacklinks()
	return g
}

// Options returns the parser options used for deltas.
func (g *Graph) Options() parser.Options { return g.opts }

// Page returns the page stored under path.
func (g *Graph) Page(path string) (*models.Page, bool) {
	p, ok := g.pages[path]
	return p, ok
}

// Len returns the number of pages.
func (g *Graph) Len() int { return len(g.pages) }

// Paths returns all page paths in lexicographic order.
func (g *Graph) Paths() []string {
	out := make([]string, 0, len(g.pages))
	for p := range g.pages {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Pages returns all pages in path order.
func (g *Graph) Pages() []*models.Page {
	paths := g.Paths()
	out := make([]*models.Page, len(paths))
	for i, p := range paths {
		out[i] = g.pages[p]
	}
	return out
}

// OutEdges returns the edges registered for source in registration order.
func (g *Graph) OutEdges(source string) []Edge {
	return g.edges[source]
}

// Edges returns every edge, grouped by source in path order.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, p := range g.Paths() {
		out = append(out, g.edges[p]...)
	}
	return out
}

// EdgeCount returns the size of the edge multiset.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, es := range g.edges {
		n += len(es)
	}
	return n
}

// UnresolvedRefs returns dangling block references in page order.
func (g *Graph) UnresolvedRefs() []UnresolvedRef {
	var out []UnresolvedRef
	for _, p := range g.Paths() {
		for _, ref := range g.unresolved[p] {
			out = append(out, UnresolvedRef{Page: p, Ref: ref})
		}
	}
	return out
}

// Resolve maps a page name to its canonical path using the alias index, then
// a case-insensitive match on the path itself.
func (g *Graph) Resolve(name string) (string, bool) {
	return g.aliases.resolve(name)
}

// Warnings returns page warnings in path order followed by alias collisions.
func (g *Graph) Warnings() []models.Warning {
	var out []models.Warning
	for _, p := range g.Pages() {
		out = append(out, p.Warnings...)
	}
	return append(out, g.aliases.collisions()...)
}

// Neighbors returns the distinct pages source links to, in the order their
// first edge was registered. Dangling targets are skipped.
func (g *Graph) Neighbors(source string) []string {
	es := g.edges[source]
	if len(es) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(es))
	var out []string
	for _, e := range es {
		if _, ok := g.pages[e.Target]; !ok {
			continue
		}
		if _, dup := seen[e.Target]; dup {
			continue
		}
		seen[e.Target] = struct{}{}
		out = append(out, e.Target)
	}
	return out
}

func (g *Graph) registerBlocks(p *models.Page) {
	for i := range p.Blocks {
		id := p.Blocks[i].ID
		owners := g.blockOwners[id]
		if n, found := slices.BinarySearch(owners, p.Path); !found {
			g.blockOwners[id] = slices.Insert(owners, n, p.Path)
		}
	}
}

func (g *Graph) unregisterBlocks(p *models.Page) {
	for i := range p.Blocks {
		id := p.Blocks[i].ID
		owners := g.blockOwners[id]
		if n, found := slices.BinarySearch(owners, p.Path); found {
			owners = slices.Delete(owners, n, n+1)
		}
		if len(owners) == 0 {
			delete(g.blockOwners, id)
		} else {
			g.blockOwners[id] = owners
		}
	}
}

// registerEdges creates the page-level edges for every reference of p.
func (g *Graph) registerEdges(p *models.Page) {
	var edges []Edge
	var unresolved []models.Reference
	for ref := range p.Refs() {
		switch ref.Kind {
		case models.RefWikiLink, models.RefEmbed:
			if ref.TargetsBlock() {
				target, ok := g.resolveBlock(p, ref.Target)
				switch {
				case !ok:
					unresolved = append(unresolved, ref)
				case target != p.Path:
					edges = append(edges, Edge{Source: p.Path, Target: target, Ref: ref})
				}
				continue
			}
			target, ok := g.aliases.resolve(ref.Target)
			if !ok {
				target = Sentinel(ref.Target)
			}
			edges = append(edges, Edge{Source: p.Path, Target: target, Ref: ref})
		case models.RefBlockRef:
			target, ok := g.resolveBlock(p, ref.Target)
			switch {
			case !ok:
				unresolved = append(unresolved, ref)
			case target != p.Path:
				edges = append(edges, Edge{Source: p.Path, Target: target, Ref: ref})
			}
		case models.RefTag, models.RefExternal:
			// Metadata only.
		}
	}
	if len(edges) > 0 {
		g.edges[p.Path] = edges
	}
	if len(unresolved) > 0 {
		g.unresolved[p.Path] = unresolved
	}
}

// resolveBlock finds the page holding block id, looking in p first.
func (g *Graph) resolveBlock(p *models.Page, id string) (string, bool) {
	if _, ok := p.Block(id); ok {
		return p.Path, true
	}
	for _, owner := range g.blockOwners[id] {
		if owner != p.Path {
			return owner, true
		}
	}
	return "", false
}
