package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/pagegraph/internal/graph"
	"github.com/starford/pagegraph/internal/graphservice"
	"github.com/starford/pagegraph/internal/index"
	"github.com/starford/pagegraph/internal/parser"
	"github.com/starford/pagegraph/internal/testutil"
)

var testPages = map[string]string{
	"pages/index.md": "- start at [[a]]\n- also [[b]]\n",
	"pages/a.md":     "---\nalias: first\ntags: [intro]\n---\n- to [[b]]\n",
	"pages/b.md":     "- back to [[a]] and [[missing]]\n",
	"pages/lone.md":  "- nobody links here\n",
}

type fakeSearcher struct {
	hits []index.SearchResult
	err  error
}

func (f fakeSearcher) Search(string, int) ([]index.SearchResult, error) {
	return f.hits, f.err
}

// testEnv loads testPages into a service and returns a router over it.
// An empty authToken means disabled auth mode.
func testEnv(t *testing.T, authToken string, search Searcher) http.Handler {
	t.Helper()
	return testEnvWith(t, testPages, graphservice.Options{}, authToken != "", authToken, search, nil)
}

func testEnvWith(t *testing.T, files map[string]string, opts graphservice.Options, authEnabled bool, token string, search Searcher, sse http.Handler) http.Handler {
	t.Helper()
	_, store := testutil.TestGraphDir(t, files)
	svc := graphservice.NewService(store, opts, testutil.QuietLogger())
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return NewRouter(svc, search, authEnabled, token, sse)
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestListPages(t *testing.T) {
	router := testEnv(t, "", nil)

	w := get(t, router, "/pages")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[PageListResponse](t, w)
	if resp.Total != 4 || len(resp.Pages) != 4 {
		t.Fatalf("total = %d, pages = %d", resp.Total, len(resp.Pages))
	}
	if resp.Pages[0].Path != "pages/a" {
		t.Errorf("first = %q, want pages/a", resp.Pages[0].Path)
	}

	resp = decode[PageListResponse](t, get(t, router, "/pages?tag=Intro"))
	if resp.Total != 1 || resp.Pages[0].Path != "pages/a" {
		t.Errorf("tag filter = %+v", resp.Pages)
	}
}

func TestGetPage(t *testing.T) {
	router := testEnv(t, "", nil)

	w := get(t, router, "/pages/pages/a")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	page := decode[PageDetail](t, w)
	if page.Path != "pages/a" {
		t.Errorf("path = %q", page.Path)
	}
	if len(page.Backlinks) != 2 {
		t.Errorf("backlinks = %d, want 2", len(page.Backlinks))
	}
	if len(page.Links) != 1 || page.Links[0] != "pages/b" {
		t.Errorf("links = %v", page.Links)
	}

	// Encoded slashes and alias names resolve to the same page.
	for _, target := range []string{"/pages/pages%2Fa", "/pages/first"} {
		if w := get(t, router, target); w.Code != http.StatusOK {
			t.Errorf("%s = %d", target, w.Code)
		}
	}
}

func TestGetPageNotFound(t *testing.T) {
	router := testEnv(t, "", nil)
	if w := get(t, router, "/pages/nope"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetPageETag(t *testing.T) {
	router := testEnv(t, "", nil)

	w := get(t, router, "/pages/pages/b")
	etag := w.Header().Get("ETag")
	if etag == "" || !strings.HasPrefix(etag, `"`) {
		t.Fatalf("etag = %q", etag)
	}

	req := httptest.NewRequest(http.MethodGet, "/pages/pages/b", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", w.Code)
	}
}

func TestGetPageETagTracksBacklinks(t *testing.T) {
	_, store := testutil.TestGraphDir(t, testPages)
	svc := graphservice.NewService(store, graphservice.Options{}, testutil.QuietLogger())
	ctx := context.Background()
	if err := svc.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	router := NewRouter(svc, nil, false, "", nil)

	w := get(t, router, "/pages/pages/lone")
	etag := w.Header().Get("ETag")
	if n := len(decode[PageDetail](t, w).Backlinks); n != 0 {
		t.Fatalf("backlinks = %d, want 0", n)
	}

	if err := svc.Apply(ctx, graph.Modified("pages/b", []byte("- now [[lone]]\n"))); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/pages/pages/lone", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("revalidate = %d, want 200 after backlinks changed", w.Code)
	}
	if got := w.Header().Get("ETag"); got == etag {
		t.Errorf("etag unchanged: %s", got)
	}
	detail := decode[PageDetail](t, w)
	if len(detail.Backlinks) != 1 || detail.Backlinks[0].Source != "pages/b" {
		t.Errorf("backlinks = %+v", detail.Backlinks)
	}
}

func TestBacklinks(t *testing.T) {
	router := testEnv(t, "", nil)

	resp := decode[BacklinksResponse](t, get(t, router, "/backlinks/pages/b"))
	if len(resp.Backlinks) != 2 {
		t.Fatalf("backlinks = %+v", resp.Backlinks)
	}
	if resp.Backlinks[0].Source != "pages/a" || resp.Backlinks[1].Source != "pages/index" {
		t.Errorf("order = %s, %s", resp.Backlinks[0].Source, resp.Backlinks[1].Source)
	}

	resp = decode[BacklinksResponse](t, get(t, router, "/backlinks/unresolved:missing"))
	if len(resp.Backlinks) != 1 || resp.Backlinks[0].Source != "pages/b" {
		t.Errorf("sentinel backlinks = %+v", resp.Backlinks)
	}

	if w := get(t, router, "/backlinks/lone"); w.Code != http.StatusOK {
		t.Errorf("lone = %d", w.Code)
	}
}

func TestResolve(t *testing.T) {
	router := testEnv(t, "", nil)

	resp := decode[ResolveResponse](t, get(t, router, "/resolve?name=First"))
	if resp.Path != "pages/a" {
		t.Errorf("path = %q", resp.Path)
	}
	if w := get(t, router, "/resolve"); w.Code != http.StatusBadRequest {
		t.Errorf("missing name = %d, want 400", w.Code)
	}
	if w := get(t, router, "/resolve?name=nope"); w.Code != http.StatusNotFound {
		t.Errorf("unknown name = %d, want 404", w.Code)
	}
}

func TestTraverse(t *testing.T) {
	router := testEnv(t, "", nil)

	resp := decode[TraverseResponse](t, get(t, router, "/traverse?start=pages/index&mode=bfs"))
	want := []string{"pages/index", "pages/a", "pages/b"}
	if strings.Join(resp.Pages, ",") != strings.Join(want, ",") {
		t.Errorf("bfs = %v, want %v", resp.Pages, want)
	}

	resp = decode[TraverseResponse](t, get(t, router, "/traverse?start=pages/index&max_depth=0&mode=DFS"))
	if resp.Mode != "dfs" {
		t.Errorf("mode = %q", resp.Mode)
	}

	for _, target := range []string{
		"/traverse?start=pages/index&mode=sideways",
		"/traverse?start=pages/index&max_depth=-1",
		"/traverse",
	} {
		if w := get(t, router, target); w.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", target, w.Code)
		}
	}
}

func TestShortestPath(t *testing.T) {
	router := testEnv(t, "", nil)

	resp := decode[PathResponse](t, get(t, router, "/path?from=pages/b&to=pages/index"))
	if resp.Found || len(resp.Path) != 0 {
		t.Errorf("unreachable = %+v", resp)
	}

	resp = decode[PathResponse](t, get(t, router, "/path?from=index&to=b"))
	if !resp.Found || strings.Join(resp.Path, ",") != "pages/index,pages/b" {
		t.Errorf("path = %+v", resp)
	}

	if w := get(t, router, "/path?from=index&to=nope"); w.Code != http.StatusNotFound {
		t.Errorf("unknown target = %d, want 404", w.Code)
	}
}

func TestRank(t *testing.T) {
	router := testEnv(t, "", nil)

	resp := decode[RankResponse](t, get(t, router, "/rank?top=2"))
	if len(resp.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(resp.Pages))
	}
	if resp.Pages[0].Score < resp.Pages[1].Score {
		t.Errorf("not sorted: %+v", resp.Pages)
	}
	if !resp.Converged {
		t.Error("expected convergence")
	}
}

func TestCycles(t *testing.T) {
	router := testEnv(t, "", nil)

	resp := decode[CyclesResponse](t, get(t, router, "/cycles"))
	if len(resp.Cycles) != 1 || strings.Join(resp.Cycles[0], ",") != "pages/a,pages/b" {
		t.Errorf("components = %v", resp.Cycles)
	}

	resp = decode[CyclesResponse](t, get(t, router, "/cycles?start=index"))
	if len(resp.Cycles) != 1 {
		t.Errorf("cycles from index = %v", resp.Cycles)
	}

	w := get(t, router, "/cycles?fail=true")
	if w.Code != http.StatusConflict {
		t.Fatalf("fail mode = %d, want 409", w.Code)
	}
	if resp := decode[CyclesResponse](t, w); len(resp.Cycles) != 1 {
		t.Errorf("conflict body = %v", resp.Cycles)
	}

	if w := get(t, router, "/cycles?start=lone&fail=true"); w.Code != http.StatusOK {
		t.Errorf("acyclic start = %d, want 200", w.Code)
	}
}

func TestOrphansStatsWarnings(t *testing.T) {
	router := testEnv(t, "", nil)

	orphans := decode[OrphansResponse](t, get(t, router, "/orphans"))
	if len(orphans.Pages) != 1 || orphans.Pages[0] != "pages/lone" {
		t.Errorf("orphans = %v", orphans.Pages)
	}

	stats := decode[map[string]any](t, get(t, router, "/stats"))
	if stats["page_count"] != float64(4) || stats["dangling_links"] != float64(1) {
		t.Errorf("stats = %v", stats)
	}

	warnings := decode[WarningsResponse](t, get(t, router, "/warnings"))
	if warnings.Warnings == nil {
		t.Error("warnings should be an empty list, not null")
	}
}

func TestGraph(t *testing.T) {
	router := testEnv(t, "", nil)

	doc := decode[GraphResponse](t, get(t, router, "/graph"))
	if len(doc.Pages) != 4 {
		t.Errorf("pages = %d", len(doc.Pages))
	}
	if doc.Counts.Pages != 4 {
		t.Errorf("stats.page_count = %d", doc.Counts.Pages)
	}
}

func TestSearch(t *testing.T) {
	hits := []index.SearchResult{{Path: "pages/a", Title: "A", BlockID: "x", Snippet: "to [b]"}}
	router := testEnv(t, "", fakeSearcher{hits: hits})

	resp := decode[SearchResponse](t, get(t, router, "/search?q=to"))
	if len(resp.Results) != 1 || resp.Results[0].BlockID != "x" {
		t.Errorf("results = %+v", resp.Results)
	}
	if w := get(t, router, "/search"); w.Code != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", w.Code)
	}

	router = testEnv(t, "", fakeSearcher{err: errors.New("boom")})
	if w := get(t, router, "/search?q=x"); w.Code != http.StatusInternalServerError {
		t.Errorf("search error = %d, want 500", w.Code)
	}

	router = testEnv(t, "", nil)
	if w := get(t, router, "/search?q=x"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no searcher = %d, want 503", w.Code)
	}
}

func TestSearchWithIndex(t *testing.T) {
	_, store := testutil.TestGraphDir(t, testPages)
	db := testutil.TestDB(t)
	svc := graphservice.NewService(store, graphservice.Options{}, testutil.QuietLogger(), graphservice.WithPersister(db))
	if err := svc.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	router := NewRouter(svc, db, false, "", nil)

	resp := decode[SearchResponse](t, get(t, router, "/search?q=nobody"))
	if len(resp.Results) != 1 || resp.Results[0].Path != "pages/lone" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestPublicOnlyHidesPages(t *testing.T) {
	files := map[string]string{
		"pages/open.md":   "---\npublic: true\n---\n- [[closed]]\n",
		"pages/closed.md": "- [[open]]\n",
	}
	opts := graphservice.Options{Parser: parser.Options{PublicOnly: true}}
	hits := []index.SearchResult{{Path: "pages/closed"}, {Path: "pages/open"}}
	router := testEnvWith(t, files, opts, false, "", fakeSearcher{hits: hits}, nil)

	if w := get(t, router, "/pages/pages/closed"); w.Code != http.StatusNotFound {
		t.Errorf("private page = %d, want 404", w.Code)
	}
	list := decode[PageListResponse](t, get(t, router, "/pages"))
	if list.Total != 1 {
		t.Errorf("listing = %+v", list.Pages)
	}
	bl := decode[BacklinksResponse](t, get(t, router, "/backlinks/pages/open"))
	if len(bl.Backlinks) != 0 {
		t.Errorf("backlinks leak private source: %+v", bl.Backlinks)
	}
	search := decode[SearchResponse](t, get(t, router, "/search?q=x"))
	if len(search.Results) != 1 || search.Results[0].Path != "pages/open" {
		t.Errorf("search = %+v", search.Results)
	}
}

// Auth tests.

func TestAuthTokenMode(t *testing.T) {
	router := testEnv(t, "secret-token", nil)

	// No token → 401.
	if w := get(t, router, "/pages"); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	// Wrong token → 401.
	req := httptest.NewRequest(http.MethodGet, "/pages", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	// Correct token → 200.
	req = httptest.NewRequest(http.MethodGet, "/pages", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("correct token = %d, want 200", w.Code)
	}
}

func TestAuthDisabledMode(t *testing.T) {
	router := testEnv(t, "", nil)
	if w := get(t, router, "/stats"); w.Code != http.StatusOK {
		t.Errorf("disabled mode = %d, want 200", w.Code)
	}
}

// stubSSE writes headers and blocks until the request context is done.
var stubSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSE_AuthRequired(t *testing.T) {
	router := testEnvWith(t, testPages, graphservice.Options{}, true, "tok", nil, stubSSE)

	if w := get(t, router, "/events"); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSE_ValidToken(t *testing.T) {
	router := testEnvWith(t, testPages, graphservice.Options{}, true, "tok", nil, stubSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
