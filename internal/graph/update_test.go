package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/pagegraph/internal/apperr"
)

func TestAddedThenRemovedRestoresGraph(t *testing.T) {
	g := exampleGraph(t)
	paths, edges := g.Paths(), g.Edges()

	require.NoError(t, g.Apply(Added("c", []byte("---\nalias: a\n---\n- [[index]] [[b]]\n"))))
	assert.Equal(t, 4, g.Len())
	target, _ := g.Resolve("a")
	assert.Equal(t, "c", target, "the newest claimant owns a contested name")

	require.NoError(t, g.Apply(Removed("c")))
	assert.Equal(t, paths, g.Paths())
	assert.Equal(t, edges, g.Edges())
	target, _ = g.Resolve("a")
	assert.Equal(t, "a", target)
}

func TestRemovedTurnsInboundEdgesDangling(t *testing.T) {
	g := exampleGraph(t)

	require.NoError(t, g.Apply(Removed("b")))
	_, ok := g.Page("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "unresolved:b"}, targets(g.OutEdges("index")))
	assert.Equal(t, []string{"unresolved:b"}, targets(g.OutEdges("a")))
	assert.Equal(t, 2, g.Stats().DanglingLinks)
	assert.Equal(t, 3, g.EdgeCount())
}

func TestRemovedTurnsBlockEdgesUnresolved(t *testing.T) {
	g := newGraph(t, map[string]string{
		"a": "- origin\n  id:: block-1\n",
		"b": "- ((block-1)) and [[a]]\n",
	})
	require.Len(t, g.OutEdges("b"), 2)

	require.NoError(t, g.Apply(Removed("a")))
	assert.Equal(t, []string{"unresolved:a"}, targets(g.OutEdges("b")))
	unresolved := g.UnresolvedRefs()
	require.Len(t, unresolved, 1)
	assert.Equal(t, "block-1", unresolved[0].Ref.Target)
}

func TestModifiedReplacesOutboundEdges(t *testing.T) {
	g := exampleGraph(t)

	require.NoError(t, g.Apply(Modified("a", []byte("- back to [[index]]\n"))))
	assert.Equal(t, []string{"index"}, targets(g.OutEdges("a")))
	assert.Equal(t, []string{"a", "b"}, targets(g.OutEdges("index")))

	page, ok := g.Page("a")
	require.True(t, ok)
	assert.Equal(t, "back to [[index]]", page.Blocks[0].Content)
}

func TestAddedDoesNotReresolveOtherPages(t *testing.T) {
	g := newGraph(t, map[string]string{"x": "- [[later]]\n"})

	require.NoError(t, g.Apply(Added("later", []byte("- here now\n"))))
	assert.Equal(t, []string{"unresolved:later"}, targets(g.OutEdges("x")))

	rebuilt := Build(g.Pages(), g.Options())
	assert.Equal(t, []string{"later"}, targets(rebuilt.OutEdges("x")))
}

func TestBacklinksAreRefreshedExplicitly(t *testing.T) {
	g := exampleGraph(t)
	assert.False(t, g.BacklinksStale())

	require.NoError(t, g.Apply(Modified("index", []byte("- only [[a]]\n"))))
	assert.True(t, g.BacklinksStale())
	assert.Len(t, g.Backlinks("b"), 2, "backlinks lag until refreshed")

	g.RefreshBacklinks()
	assert.False(t, g.BacklinksStale())
	assert.Equal(t, []string{"a"}, sources(g.Backlinks("b")))
	assert.Equal(t, []string{"index"}, sources(g.Backlinks("a")))
}

func TestRemoveUnknownPage(t *testing.T) {
	g := exampleGraph(t)
	err := g.Apply(Removed("ghost"))
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 3, g.Len())
}

func TestUnknownDeltaKind(t *testing.T) {
	g := exampleGraph(t)
	assert.Error(t, g.Apply(Delta{Kind: DeltaKind(42), Path: "a"}))
	assert.Equal(t, "unknown", DeltaKind(42).String())
	assert.Equal(t, "removed", DeltaRemoved.String())
}
