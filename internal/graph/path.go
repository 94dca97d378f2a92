package graph

import "slices"

// ShortestPath returns the fewest-hop path from one page to another. Among
// equally short paths the one found first by a breadth-first search in edge
// registration order wins. The second result is false when to is
// unreachable or either page is unknown.
func (g *Graph) ShortestPath(from, to string) ([]string, bool) {
	if _, ok := g.pages[from]; !ok {
		return nil, false
	}
	if _, ok := g.pages[to]; !ok {
		return nil, false
	}
	if from == to {
		return []string{from}, true
	}

	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range g.Neighbors(cur) {
			if _, seen := prev[n]; seen {
				continue
			}
			prev[n] = cur
			if n == to {
				path := []string{to}
				for p := cur; p != ""; p = prev[p] {
					path = append(path, p)
				}
				slices.Reverse(path)
				return path, true
			}
			queue = append(queue, n)
		}
	}
	return nil, false
}
