package graph

// Stats summarises a graph for run reports.
type Stats struct {
	Pages               int `json:"page_count"`
	Blocks              int `json:"total_blocks"`
	Links               int `json:"total_links"`
	DanglingLinks       int `json:"dangling_links"`
	UnresolvedBlockRefs int `json:"unresolved_block_refs"`
	Orphans             int `json:"orphan_pages"`
	Namespaces          int `json:"namespaces"`
	Warnings            int `json:"warnings"`
}

// Stats computes the current statistics.
func (g *Graph) Stats() Stats {
	s := Stats{
		Pages:    len(g.pages),
		Orphans:  len(g.Orphans()),
		Warnings: len(g.Warnings()),
	}
	namespaces := map[string]struct{}{}
	for _, p := range g.pages {
		s.Blocks += len(p.Blocks)
		if ns := p.Namespace(); ns != "" {
			namespaces[ns] = struct{}{}
		}
	}
	s.Namespaces = len(namespaces)
	for _, es := range g.edges {
		s.Links += len(es)
		for _, e := range es {
			if IsSentinel(e.Target) {
				s.DanglingLinks++
			}
		}
	}
	for _, refs := range g.unresolved {
		s.UnresolvedBlockRefs += len(refs)
	}
	return s
}
