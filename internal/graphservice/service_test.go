package graphservice

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/pagegraph/internal/apperr"
	"github.com/starford/pagegraph/internal/export"
	"github.com/starford/pagegraph/internal/graph"
	"github.com/starford/pagegraph/internal/models"
	"github.com/starford/pagegraph/internal/parser"
	"github.com/starford/pagegraph/internal/storage"
	"github.com/starford/pagegraph/internal/testutil"
)

type fakeMirror struct {
	mu       sync.Mutex
	saved    []string
	deleted  []string
	replaced int
}

func (m *fakeMirror) SavePage(p *models.Page, _ []graph.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, p.Path)
	return nil
}

func (m *fakeMirror) DeletePage(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, path)
	return nil
}

func (m *fakeMirror) ReplaceAll(*graph.Graph) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced++
	return nil
}

type fakeFeed struct {
	mu     sync.Mutex
	events []string
	last   graph.Stats
}

func (f *fakeFeed) PublishPageEvent(kind, path string, stats graph.Stats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, kind+":"+path)
	f.last = stats
}

type env struct {
	root   string
	svc    *Service
	mirror *fakeMirror
	feed   *fakeFeed
}

func newEnv(t *testing.T, files map[string]string, opts Options) *env {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		testutil.WriteFile(t, root, rel, content)
	}
	store, err := storage.NewFS(root)
	require.NoError(t, err)

	e := &env{root: root, mirror: &fakeMirror{}, feed: &fakeFeed{}}
	e.svc = NewService(store, opts, testutil.QuietLogger(), WithPersister(e.mirror), WithPublisher(e.feed))
	require.NoError(t, e.svc.Load(context.Background()))
	return e
}

var exampleFiles = map[string]string{
	"pages/index.md": "- see [[a]]\n- and [[b]]\n",
	"pages/a.md":     "- links to [[b]]\n",
	"pages/b.md":     "- nothing here\n",
}

func TestLoadAndQuery(t *testing.T) {
	e := newEnv(t, exampleFiles, Options{})
	s := e.svc

	assert.Equal(t, 1, e.mirror.replaced)
	assert.Equal(t, 3, s.Stats().Pages)
	assert.Empty(t, s.Orphans())

	bl, err := s.Backlinks("pages/b")
	require.NoError(t, err)
	assert.Len(t, bl, 2)

	path, err := s.ShortestPath("pages/index", "pages/b")
	require.NoError(t, err)
	assert.Equal(t, []string{"pages/index", "pages/b"}, path)

	order, err := s.Traverse("pages/index", graph.DFS, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"pages/index", "pages/a", "pages/b"}, order)

	resolved, err := s.Resolve("A")
	require.NoError(t, err)
	assert.Equal(t, "pages/a", resolved)

	ranking := s.Rank()
	assert.Same(t, ranking, s.Rank(), "ranking is cached until the next update")
	assert.Equal(t, "pages/b", ranking.Top(1)[0].Path)

	found, err := s.Cycles(graph.CycleOptions{})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestUnknownPages(t *testing.T) {
	s := newEnv(t, exampleFiles, Options{}).svc

	_, err := s.Page("nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Backlinks("nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Traverse("nope", graph.BFS, 0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.ShortestPath("pages/a", "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Cycles(graph.CycleOptions{Start: "nope"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Resolve("nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	path, err := s.ShortestPath("pages/b", "pages/index")
	require.NoError(t, err)
	assert.Nil(t, path)
}

func TestLoadMissingRoot(t *testing.T) {
	root := t.TempDir()
	store, err := storage.NewFS(root)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(root))

	s := NewService(store, Options{}, testutil.QuietLogger())
	assert.ErrorIs(t, s.Load(context.Background()), apperr.ErrIO)
}

func TestApplyPublishesAndMirrors(t *testing.T) {
	e := newEnv(t, exampleFiles, Options{})
	s := e.svc
	before := s.Rank()

	err := s.Apply(context.Background(),
		graph.Added("pages/c", []byte("- [[b]]\n")),
		graph.Removed("pages/ghost"),
		graph.Removed("pages/a"),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"added:pages/c", "removed:pages/a"}, e.feed.events)
	assert.Equal(t, 3, e.feed.last.Pages)
	assert.Equal(t, []string{"pages/c"}, e.mirror.saved)
	assert.Equal(t, []string{"pages/a"}, e.mirror.deleted)

	bl, err := s.Backlinks("pages/b")
	require.NoError(t, err)
	assert.Len(t, bl, 2, "backlinks are refreshed after the batch")
	assert.NotSame(t, before, s.Rank())
}

func TestApplyCancelled(t *testing.T) {
	s := newEnv(t, exampleFiles, Options{}).svc
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Apply(ctx, graph.Added("pages/c", nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, s.Stats().Pages)
}

func TestSync(t *testing.T) {
	e := newEnv(t, exampleFiles, Options{})

	testutil.WriteFile(t, e.root, "pages/a.md", "- now links to [[index]]\n")
	testutil.WriteFile(t, e.root, "pages/new.md", "- fresh\n")
	require.NoError(t, os.Remove(filepath.Join(e.root, "pages/b.md")))

	n, err := e.svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"modified:pages/a", "added:pages/new", "removed:pages/b"}, e.feed.events)

	n, err = e.svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "a second pass finds nothing to do")
}

func TestFileChangedAndRemoved(t *testing.T) {
	e := newEnv(t, exampleFiles, Options{})
	ctx := context.Background()

	require.NoError(t, e.svc.FileChanged(ctx, "pages/a.md"))
	assert.Empty(t, e.feed.events, "unchanged content is ignored")

	testutil.WriteFile(t, e.root, "pages/concepts___blocks.md", "- [[a]]\n")
	require.NoError(t, e.svc.FileChanged(ctx, "pages/concepts___blocks.md"))
	_, err := e.svc.Page("pages/concepts/blocks")
	require.NoError(t, err)

	require.NoError(t, e.svc.FileChanged(ctx, "notes.txt"))
	require.NoError(t, e.svc.FileChanged(ctx, ".git/x.md"))

	require.NoError(t, os.Remove(filepath.Join(e.root, "pages/a.md")))
	require.NoError(t, e.svc.FileChanged(ctx, "pages/a.md"))
	require.NoError(t, e.svc.FileRemoved(ctx, "pages/a.md"))

	assert.Equal(t, []string{"added:pages/concepts/blocks", "removed:pages/a"}, e.feed.events)
}

func TestPublicOnly(t *testing.T) {
	files := map[string]string{
		"pages/open.md":   "---\npublic: true\n---\n- [[closed]]\n",
		"pages/closed.md": "- private\n",
	}
	s := newEnv(t, files, Options{Parser: parser.Options{PublicOnly: true}}).svc

	pages := s.Pages()
	require.Len(t, pages, 1)
	assert.Equal(t, "pages/open", pages[0].Path)

	var buf bytes.Buffer
	require.NoError(t, s.Export(&buf))
	doc, err := export.Decode(&buf)
	require.NoError(t, err)
	assert.Len(t, doc.Pages, 1)
	require.Len(t, doc.Links, 1)
	assert.True(t, doc.Links[0].Dangling)
}

func TestPageDetail(t *testing.T) {
	s := newEnv(t, exampleFiles, Options{}).svc

	d, err := s.PageDetail("pages/a")
	require.NoError(t, err)
	assert.Equal(t, "A", d.Title)
	assert.Equal(t, []string{"pages/b"}, d.Links)
	require.Len(t, d.Backlinks, 1)
	assert.Equal(t, "pages/index", d.Backlinks[0].Source)
	require.Len(t, d.Blocks, 1)
	assert.Equal(t, "links to [[b]]", d.Blocks[0].Content)

	_, err = s.PageDetail("pages/nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPageDetailHidesPrivatePages(t *testing.T) {
	files := map[string]string{
		"pages/open.md":   "---\npublic: true\n---\n- [[closed]]\n",
		"pages/closed.md": "- back to [[open]]\n",
	}
	s := newEnv(t, files, Options{Parser: parser.Options{PublicOnly: true}}).svc

	_, err := s.PageDetail("pages/closed")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.False(t, s.Visible("pages/closed"))
	assert.True(t, s.Visible("pages/open"))

	d, err := s.PageDetail("pages/open")
	require.NoError(t, err)
	assert.Empty(t, d.Links)
	assert.Empty(t, d.Backlinks)
}
