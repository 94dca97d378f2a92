package graph

import (
	"fmt"
	"slices"

	"github.com/starford/pagegraph/internal/apperr"
	"github.com/starford/pagegraph/internal/models"
	"github.com/starford/pagegraph/internal/parser"
)

// DeltaKind is the kind of a single-page change.
type DeltaKind int

const (
	DeltaAdded DeltaKind = iota
	DeltaModified
	DeltaRemoved
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaAdded:
		return "added"
	case DeltaModified:
		return "modified"
	case DeltaRemoved:
		return "removed"
	}
	return "unknown"
}

// Delta is a single-page change. Data is the new page text and is ignored for
// removals.
type Delta struct {
	Kind DeltaKind
	Path string
	Data []byte
}

// Added returns a delta introducing the page at path.
func Added(path string, data []byte) Delta {
	return Delta{Kind: DeltaAdded, Path: path, Data: data}
}

// Modified returns a delta replacing the page at path.
func Modified(path string, data []byte) Delta {
	return Delta{Kind: DeltaModified, Path: path, Data: data}
}

// Removed returns a delta deleting the page at path.
func Removed(path string) Delta {
	return Delta{Kind: DeltaRemoved, Path: path}
}

// Apply updates the graph with one delta.
//
// Added and Modified re-parse the page, replace it wholesale and re-register
// its aliases, blocks and outbound edges. Edges from other pages are left as
// they are, even if the new page would now resolve them; a full Build is
// needed for that. Removed drops the page with its aliases and outbound edges
// and turns edges pointing at it into dangling edges.
//
// Backlinks are not refreshed; call RefreshBacklinks after a batch.
func (g *Graph) Apply(d Delta) error {
	switch d.Kind {
	case DeltaAdded, DeltaModified:
		g.Replace(parser.ParsePage(d.Path, d.Data, g.opts))
		return nil
	case DeltaRemoved:
		if _, ok := g.pages[d.Path]; !ok {
			return fmt.Errorf("graph: remove %s: %w", d.Path, apperr.ErrNotFound)
		}
		g.remove(d.Path)
		return nil
	}
	return fmt.Errorf("graph: unknown delta kind %d", d.Kind)
}

// Replace installs an already parsed page, replacing any page with the same
// path.
func (g *Graph) Replace(p *models.Page) {
	if old, ok := g.pages[p.Path]; ok {
		g.detach(old)
	}
	g.pages[p.Path] = p
	g.aliases.register(p)
	g.registerBlocks(p)
	g.registerEdges(p)
	g.backlinksStale = true
}

func (g *Graph) remove(path string) {
	g.detach(g.pages[path])
	delete(g.pages, path)

	for source, es := range g.edges {
		if !slices.ContainsFunc(es, func(e Edge) bool { return e.Target == path }) {
			continue
		}
		kept := make([]Edge, 0, len(es))
		for _, e := range es {
			if e.Target != path {
				kept = append(kept, e)
				continue
			}
			if e.Ref.TargetsBlock() {
				g.unresolved[source] = append(g.unresolved[source], e.Ref)
				continue
			}
			e.Target = Sentinel(e.Ref.Target)
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(g.edges, source)
		} else {
			g.edges[source] = kept
		}
	}
	g.backlinksStale = true
}

// detach removes everything p registered as a source.
func (g *Graph) detach(p *models.Page) {
	g.aliases.unregister(p.Path)
	g.unregisterBlocks(p)
	delete(g.edges, p.Path)
	delete(g.unresolved, p.Path)
}
