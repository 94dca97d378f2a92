package graph

import (
	"math"
	"sort"
)

// RankOptions tunes PageRank.
type RankOptions struct {
	Damping float64
	Epsilon float64
	MaxIter int
}

// DefaultRankOptions returns damping 0.85, epsilon 1e-6 and 100 iterations.
func DefaultRankOptions() RankOptions {
	return RankOptions{Damping: 0.85, Epsilon: 1e-6, MaxIter: 100}
}

func (o RankOptions) withDefaults() RankOptions {
	d := DefaultRankOptions()
	if o.Damping <= 0 || o.Damping >= 1 {
		o.Damping = d.Damping
	}
	if o.Epsilon <= 0 {
		o.Epsilon = d.Epsilon
	}
	if o.MaxIter <= 0 {
		o.MaxIter = d.MaxIter
	}
	return o
}

// Ranking is the result of a PageRank run.
type Ranking struct {
	Scores     map[string]float64 `json:"scores"`
	Iterations int                `json:"iterations"`
	Converged  bool               `json:"converged"`
}

// RankedPage pairs a path with its score.
type RankedPage struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// Top returns the n highest ranked pages, ties broken by path. A
// non-positive n returns all pages.
func (r *Ranking) Top(n int) []RankedPage {
	out := make([]RankedPage, 0, len(r.Scores))
	for p, s := range r.Scores {
		out = append(out, RankedPage{Path: p, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Path < out[j].Path
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// PageRank runs the power method over the de-duplicated page graph until the
// L1 change between iterations drops below the epsilon or the iteration cap
// is hit. Rank held by pages without outbound links is spread evenly over all
// pages, so the scores always sum to one. Invalid options fall back to the
// defaults.
func (g *Graph) PageRank(opts RankOptions) *Ranking {
	opts = opts.withDefaults()
	paths := g.Paths()
	n := len(paths)
	result := &Ranking{Scores: make(map[string]float64, n)}
	if n == 0 {
		result.Converged = true
		return result
	}

	index := make(map[string]int, n)
	for i, p := range paths {
		index[p] = i
	}
	out := make([][]int, n)
	for i, p := range paths {
		for _, t := range g.Neighbors(p) {
			out[i] = append(out[i], index[t])
		}
	}

	size := float64(n)
	rank := make([]float64, n)
	next := make([]float64, n)
	for i := range rank {
		rank[i] = 1 / size
	}

	d := opts.Damping
	for iter := 1; iter <= opts.MaxIter; iter++ {
		dangling := 0.0
		for i := range rank {
			if len(out[i]) == 0 {
				dangling += rank[i]
			}
		}
		base := (1-d)/size + d*dangling/size
		for i := range next {
			next[i] = base
		}
		for i, targets := range out {
			if len(targets) == 0 {
				continue
			}
			share := d * rank[i] / float64(len(targets))
			for _, j := range targets {
				next[j] += share
			}
		}

		diff := 0.0
		for i := range rank {
			diff += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		result.Iterations = iter
		if diff < opts.Epsilon {
			result.Converged = true
			break
		}
	}

	for i, p := range paths {
		result.Scores[p] = rank[i]
	}
	return result
}
