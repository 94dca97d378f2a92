package graph

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Mode selects the traversal order.
type Mode int

const (
	BFS Mode = iota
	DFS
)

func (m Mode) String() string {
	if m == DFS {
		return "dfs"
	}
	return "bfs"
}

// ParseMode reads "bfs" or "dfs", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bfs":
		return BFS, nil
	case "dfs":
		return DFS, nil
	}
	return BFS, fmt.Errorf("graph: unknown traversal mode %q", s)
}

type traverseConfig struct {
	maxDepth int
}

// TraverseOption configures Traverse.
type TraverseOption func(*traverseConfig)

// WithMaxDepth stops the traversal n hops away from the start. Zero or a
// negative value means no limit.
func WithMaxDepth(n int) TraverseOption {
	return func(c *traverseConfig) { c.maxDepth = n }
}

type visit struct {
	path  string
	depth int
}

// Traverse yields the pages reachable from start, start first, never visiting
// a page twice. Neighbors are taken in edge registration order. A start that
// is not a page yields nothing.
func (g *Graph) Traverse(start string, mode Mode, opts ...TraverseOption) iter.Seq[string] {
	var cfg traverseConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	within := func(depth int) bool { return cfg.maxDepth <= 0 || depth <= cfg.maxDepth }

	return func(yield func(string) bool) {
		if _, ok := g.pages[start]; !ok {
			return
		}
		visited := map[string]struct{}{}

		if mode == DFS {
			stack := []visit{{start, 0}}
			for len(stack) > 0 {
				v := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if _, seen := visited[v.path]; seen {
					continue
				}
				visited[v.path] = struct{}{}
				if !yield(v.path) {
					return
				}
				if !within(v.depth + 1) {
					continue
				}
				next := g.Neighbors(v.path)
				for _, n := range slices.Backward(next) {
					if _, seen := visited[n]; !seen {
						stack = append(stack, visit{n, v.depth + 1})
					}
				}
			}
			return
		}

		visited[start] = struct{}{}
		queue := []visit{{start, 0}}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			if !yield(v.path) {
				return
			}
			if !within(v.depth + 1) {
				continue
			}
			for _, n := range g.Neighbors(v.path) {
				if _, seen := visited[n]; seen {
					continue
				}
				visited[n] = struct{}{}
				queue = append(queue, visit{n, v.depth + 1})
			}
		}
	}
}
