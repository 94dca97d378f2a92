package graph

import "github.com/starford/pagegraph/internal/models"

// Backlink is one inbound reference to a page.
type Backlink struct {
	Source string           `json:"source"`
	Ref    models.Reference `json:"ref"`
}

// RefreshBacklinks rebuilds the backlink index from the current edges.
// Sources are visited in path order and each source's edges in registration
// order, so the result is deterministic.
func (g *Graph) RefreshBacklinks() {
	idx := make(map[string][]Backlink, len(g.pages))
	for _, source := range g.Paths() {
		for _, e := range g.edges[source] {
			idx[e.Target] = append(idx[e.Target], Backlink{Source: e.Source, Ref: e.Ref})
		}
	}
	g.backlinks = idx
	g.backlinksStale = false
}

// Backlinks returns the inbound references of path as of the last
// RefreshBacklinks. Sentinel paths are valid targets.
func (g *Graph) Backlinks(path string) []Backlink {
	return g.backlinks[path]
}

// BacklinksStale reports whether deltas were applied since the last refresh.
func (g *Graph) BacklinksStale() bool { return g.backlinksStale }
