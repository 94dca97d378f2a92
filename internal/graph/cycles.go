package graph

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/starford/pagegraph/internal/apperr"
)

// CycleOptions selects the cycle detection mode.
type CycleOptions struct {
	// Start limits detection to cycles reachable from this page. Empty means
	// whole-graph mode, which reports strongly connected components.
	Start string
	// FailOnCycle turns any finding into a *CycleError.
	FailOnCycle bool
}

// CycleError is returned in fail-on-cycle mode.
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		parts[i] = strings.Join(c, " -> ")
	}
	return fmt.Sprintf("%s: %s", apperr.ErrCycleDetected, strings.Join(parts, "; "))
}

func (e *CycleError) Unwrap() error { return apperr.ErrCycleDetected }

// DetectCycles reports cycles as data, or as an error when opts.FailOnCycle
// is set and something was found. With a start page, fail mode stops at the
// back edges of one depth-first pass instead of enumerating every cycle.
func (g *Graph) DetectCycles(opts CycleOptions) ([][]string, error) {
	var found [][]string
	switch {
	case opts.Start != "" && opts.FailOnCycle:
		found = g.backEdgeCycles(opts.Start)
	case opts.Start != "":
		found = g.CyclesFrom(opts.Start)
	default:
		found = g.StronglyConnected()
	}
	if opts.FailOnCycle && len(found) > 0 {
		return found, &CycleError{Cycles: found}
	}
	return found, nil
}

const (
	white = iota
	gray
	black
)

type frame struct {
	node string
	next int
	nbrs []string
}

// backEdgeCycles runs an iterative three-color depth-first search from start
// and reports one cycle per back edge, rotated so its smallest path comes
// first. Cross edges into finished pages are not followed, so cycles that
// close through them are missed.
func (g *Graph) backEdgeCycles(start string) [][]string {
	if _, ok := g.pages[start]; !ok {
		return nil
	}
	color := map[string]int{start: gray}
	stack := []frame{{node: start, nbrs: g.Neighbors(start)}}
	seen := map[string]struct{}{}
	var out [][]string

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next == len(top.nbrs) {
			color[top.node] = black
			stack = stack[:len(stack)-1]
			continue
		}
		n := top.nbrs[top.next]
		top.next++

		switch color[n] {
		case white:
			color[n] = gray
			stack = append(stack, frame{node: n, nbrs: g.Neighbors(n)})
		case gray:
			i := slices.IndexFunc(stack, func(f frame) bool { return f.node == n })
			cycle := make([]string, 0, len(stack)-i)
			for _, f := range stack[i:] {
				cycle = append(cycle, f.node)
			}
			cycle = canonicalCycle(cycle)
			key := strings.Join(cycle, "\x00")
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				out = append(out, cycle)
			}
		}
	}
	return out
}

// CyclesFrom returns every elementary cycle among the pages reachable from
// start, each rotated so its smallest path comes first, sorted. It is
// Johnson's algorithm run iteratively: for each page s in path order it
// searches the pages not smaller than s for circuits through s, blocking
// pages that cannot currently reach s.
func (g *Graph) CyclesFrom(start string) [][]string {
	if _, ok := g.pages[start]; !ok {
		return nil
	}
	nodes := g.reachable(start)
	rank := make(map[string]int, len(nodes))
	for i, n := range nodes {
		rank[n] = i
	}

	var out [][]string
	for si, s := range nodes {
		adj := func(v string) []string {
			var nbrs []string
			for _, w := range g.Neighbors(v) {
				if r, ok := rank[w]; ok && r >= si {
					nbrs = append(nbrs, w)
				}
			}
			return nbrs
		}
		blocked := map[string]bool{s: true}
		waiting := map[string]map[string]struct{}{}
		unblock := func(u string) {
			todo := []string{u}
			for len(todo) > 0 {
				x := todo[len(todo)-1]
				todo = todo[:len(todo)-1]
				if !blocked[x] {
					continue
				}
				blocked[x] = false
				for w := range waiting[x] {
					todo = append(todo, w)
				}
				delete(waiting, x)
			}
		}

		type circuit struct {
			frame
			found bool
		}
		stack := []circuit{{frame: frame{node: s, nbrs: adj(s)}}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.nbrs) {
				w := top.nbrs[top.next]
				top.next++
				switch {
				case w == s:
					cycle := make([]string, len(stack))
					for i, c := range stack {
						cycle[i] = c.node
					}
					out = append(out, cycle)
					top.found = true
				case !blocked[w]:
					blocked[w] = true
					stack = append(stack, circuit{frame: frame{node: w, nbrs: adj(w)}})
				}
				continue
			}

			v, found := top.node, top.found
			if found {
				unblock(v)
			} else {
				for _, w := range top.nbrs {
					if waiting[w] == nil {
						waiting[w] = map[string]struct{}{}
					}
					waiting[w][v] = struct{}{}
				}
			}
			stack = stack[:len(stack)-1]
			if found && len(stack) > 0 {
				stack[len(stack)-1].found = true
			}
		}
	}
	slices.SortFunc(out, slices.Compare)
	return out
}

// reachable lists the pages reachable from start, start included, sorted.
func (g *Graph) reachable(start string) []string {
	nodes := slices.Collect(g.Traverse(start, BFS))
	sort.Strings(nodes)
	return nodes
}

func canonicalCycle(c []string) []string {
	first := 0
	for i := range c {
		if c[i] < c[first] {
			first = i
		}
	}
	return append(slices.Clone(c[first:]), c[:first]...)
}

// StronglyConnected returns every strongly connected component with more
// than one page. Members are sorted and components are ordered by their first
// member.
func (g *Graph) StronglyConnected() [][]string {
	paths := g.Paths()

	// First pass: finish order on the forward graph.
	color := make(map[string]int, len(paths))
	order := make([]string, 0, len(paths))
	for _, root := range paths {
		if color[root] != white {
			continue
		}
		color[root] = gray
		stack := []frame{{node: root, nbrs: g.Neighbors(root)}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next == len(top.nbrs) {
				color[top.node] = black
				order = append(order, top.node)
				stack = stack[:len(stack)-1]
				continue
			}
			n := top.nbrs[top.next]
			top.next++
			if color[n] == white {
				color[n] = gray
				stack = append(stack, frame{node: n, nbrs: g.Neighbors(n)})
			}
		}
	}

	reverse := make(map[string][]string, len(paths))
	for _, p := range paths {
		for _, n := range g.Neighbors(p) {
			reverse[n] = append(reverse[n], p)
		}
	}

	// Second pass: collect components on the reversed graph.
	assigned := make(map[string]bool, len(paths))
	var out [][]string
	for _, root := range slices.Backward(order) {
		if assigned[root] {
			continue
		}
		assigned[root] = true
		comp := []string{root}
		todo := []string{root}
		for len(todo) > 0 {
			cur := todo[len(todo)-1]
			todo = todo[:len(todo)-1]
			for _, n := range reverse[cur] {
				if !assigned[n] {
					assigned[n] = true
					comp = append(comp, n)
					todo = append(todo, n)
				}
			}
		}
		if len(comp) > 1 {
			sort.Strings(comp)
			out = append(out, comp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
