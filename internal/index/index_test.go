package index

import (
	"errors"
	"os"
	"testing"

	"github.com/starford/pagegraph/internal/apperr"
	"github.com/starford/pagegraph/internal/graph"
	"github.com/starford/pagegraph/internal/models"
	"github.com/starford/pagegraph/internal/parser"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "pagegraph-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testGraph(t *testing.T, pages map[string]string) *graph.Graph {
	t.Helper()
	var parsed []*models.Page
	for path, text := range pages {
		parsed = append(parsed, parser.ParsePage(path, []byte(text), parser.Options{}))
	}
	return graph.Build(parsed, parser.Options{})
}

// savePages stores every page of g one at a time.
func savePages(t *testing.T, db *DB, g *graph.Graph) {
	t.Helper()
	for _, p := range g.Pages() {
		if err := db.SavePage(p, g.OutEdges(p.Path)); err != nil {
			t.Fatalf("SavePage(%s): %v", p.Path, err)
		}
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"pages", "blocks", "links"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestSaveAndGetPage(t *testing.T) {
	db := testDB(t)
	g := testGraph(t, map[string]string{
		"hello": "---\ntitle: Hello World\ntags: go, test\nalias: hi\n---\n- first\n  - nested [[other]]\n",
	})
	savePages(t, db, g)

	row, err := db.GetPage("hello")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	page, _ := g.Page("hello")
	if row.Title != "Hello World" || row.Checksum != page.Checksum || row.Blocks != 2 || !row.Public {
		t.Errorf("row = %+v", row)
	}
	if len(row.Tags) != 2 || row.Tags[0] != "go" || len(row.Aliases) != 1 || row.Aliases[0] != "hi" {
		t.Errorf("tags = %v, aliases = %v", row.Tags, row.Aliases)
	}

	var parent string
	if err := db.conn.QueryRow(`SELECT parent FROM blocks WHERE page = ? AND depth = 1`, "hello").Scan(&parent); err != nil {
		t.Fatalf("nested block: %v", err)
	}
	if parent != page.Blocks[0].ID {
		t.Errorf("parent = %q, want %q", parent, page.Blocks[0].ID)
	}
}

func TestGetPage_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetPage("nonexistent"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBacklinks(t *testing.T) {
	db := testDB(t)
	savePages(t, db, testGraph(t, map[string]string{
		"index": "- see [[a]]\n- and [[b]]\n",
		"a":     "- links to [[b]]\n",
		"b":     "- nothing\n",
	}))

	bl, err := db.Backlinks("b")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if len(bl) != 2 || bl[0].Source != "a" || bl[1].Source != "index" {
		t.Fatalf("backlinks = %+v", bl)
	}
	if bl[0].Kind != models.RefWikiLink || bl[0].Block == "" {
		t.Errorf("link = %+v", bl[0])
	}
}

func TestDeletePageMakesInboundLinksDangling(t *testing.T) {
	db := testDB(t)
	savePages(t, db, testGraph(t, map[string]string{
		"a": "- origin\n  id:: block-1\n",
		"b": "- [[a]] and ((block-1))\n",
	}))

	if err := db.DeletePage("a"); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}
	if _, err := db.GetPage("a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("deleted page still present: %v", err)
	}
	if bl, _ := db.Backlinks("a"); len(bl) != 0 {
		t.Errorf("expected 0 backlinks after delete, got %d", len(bl))
	}
	bl, _ := db.Backlinks("unresolved:a")
	if len(bl) != 1 || bl[0].Source != "b" || bl[0].Kind != models.RefWikiLink {
		t.Errorf("dangling backlinks = %+v", bl)
	}
	c, _ := db.Counts()
	if c.Pages != 1 || c.Blocks != 1 || c.Links != 1 {
		t.Errorf("counts = %+v", c)
	}
}

func TestSaveReplacesExisting(t *testing.T) {
	db := testDB(t)
	g := testGraph(t, map[string]string{"up": "- [[x]]\n", "x": "", "y": ""})
	savePages(t, db, g)

	if err := g.Apply(graph.Modified("up", []byte("---\ntitle: New\n---\n- [[y]]\n- two\n"))); err != nil {
		t.Fatal(err)
	}
	page, _ := g.Page("up")
	if err := db.SavePage(page, g.OutEdges("up")); err != nil {
		t.Fatalf("SavePage: %v", err)
	}

	row, _ := db.GetPage("up")
	if row.Title != "New" || row.Blocks != 2 {
		t.Errorf("row = %+v", row)
	}
	if bl, _ := db.Backlinks("x"); len(bl) != 0 {
		t.Error("old link should be removed on save")
	}
	if bl, _ := db.Backlinks("y"); len(bl) != 1 {
		t.Error("new link should exist")
	}
}

func TestReplaceAll(t *testing.T) {
	db := testDB(t)
	savePages(t, db, testGraph(t, map[string]string{"stale": "- old\n"}))

	g := testGraph(t, map[string]string{
		"index": "- see [[a]]\n- [[Missing]]\n",
		"a":     "- a\n  - b\n",
	})
	if err := db.ReplaceAll(g); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	sums, err := db.AllChecksums()
	if err != nil {
		t.Fatalf("AllChecksums: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("checksums = %v", sums)
	}
	if _, ok := sums["stale"]; ok {
		t.Error("stale page survived ReplaceAll")
	}
	c, _ := db.Counts()
	s := g.Stats()
	if c.Pages != s.Pages || c.Blocks != s.Blocks || c.Links != s.Links {
		t.Errorf("counts = %+v, stats = %+v", c, s)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	savePages(t, db, testGraph(t, map[string]string{
		"s": "- nothing\n- uniqueword appears here\n",
		"t": "- other\n",
	}))

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s" || results[0].BlockID == "" {
		t.Errorf("search results = %+v, want 1 hit for s", results)
	}
}
