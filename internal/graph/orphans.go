package graph

// Orphans returns, in path order, the pages with no edge to or from another
// existing page. Self links and dangling links do not count.
func (g *Graph) Orphans() []string {
	linked := make(map[string]bool, len(g.pages))
	for source, es := range g.edges {
		for _, e := range es {
			if e.Target == source {
				continue
			}
			if _, ok := g.pages[e.Target]; !ok {
				continue
			}
			linked[source] = true
			linked[e.Target] = true
		}
	}
	var out []string
	for _, p := range g.Paths() {
		if !linked[p] {
			out = append(out, p)
		}
	}
	return out
}
