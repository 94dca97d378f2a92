// Package graphservice owns the live page graph. It serializes updates, keeps
// the derived views fresh after every batch and fans changes out to the
// SQLite mirror and the change feed.
package graphservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/starford/pagegraph/internal/apperr"
	"github.com/starford/pagegraph/internal/export"
	"github.com/starford/pagegraph/internal/graph"
	"github.com/starford/pagegraph/internal/models"
	"github.com/starford/pagegraph/internal/parser"
	"github.com/starford/pagegraph/internal/storage"
)

// Persister mirrors graph changes to durable storage.
type Persister interface {
	SavePage(p *models.Page, edges []graph.Edge) error
	DeletePage(path string) error
	ReplaceAll(g *graph.Graph) error
}

// Publisher is notified after every applied delta.
type Publisher interface {
	PublishPageEvent(kind, path string, stats graph.Stats)
}

// Options configures parsing and ranking.
type Options struct {
	// Parser.PublicOnly also hides non-public pages from listings and
	// exports.
	Parser  parser.Options
	Workers int
	Rank    graph.RankOptions
}

// Option customises a Service.
type Option func(*Service)

// WithPersister mirrors every change into p.
func WithPersister(p Persister) Option {
	return func(s *Service) { s.persist = p }
}

// WithPublisher announces every change through p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publish = p }
}

// PageSummary is a lightweight item in a page listing.
type PageSummary struct {
	Path     string   `json:"path"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags"`
	Public   bool     `json:"public"`
	Blocks   int      `json:"block_count"`
	Checksum string   `json:"checksum"`
}

// PageDetail is a page with its block tree and inbound references.
type PageDetail struct {
	export.Page
	Backlinks []graph.Backlink `json:"backlinks"`
	Warnings  []models.Warning `json:"warnings,omitempty"`
}

// Service coordinates storage, the in-memory graph and its mirrors.
//
// Updates take the write lock for the whole batch, so readers observe the
// graph either before or after a batch, never in between.
type Service struct {
	store   storage.Provider
	opts    Options
	logger  *slog.Logger
	persist Persister
	publish Publisher

	mu   sync.RWMutex
	g    *graph.Graph
	rank *graph.Ranking
}

// NewService creates a service with an empty graph. Call Load to populate it.
func NewService(store storage.Provider, opts Options, logger *slog.Logger, options ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:  store,
		opts:   opts,
		logger: logger,
		g:      graph.New(opts.Parser),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Load parses every page under the root and replaces the graph. Only a
// failure to enumerate the root is an error; per-page problems end up in the
// graph warnings.
func (s *Service) Load(ctx context.Context) error {
	g, err := graph.Load(ctx, s.store, graph.LoadOptions{Parser: s.opts.Parser, Workers: s.opts.Workers})
	if err != nil {
		return err
	}
	stats := g.Stats()

	s.mu.Lock()
	s.g = g
	s.rank = nil
	if s.persist != nil {
		if err := s.persist.ReplaceAll(g); err != nil {
			s.logger.Warn("graph: mirror replace failed", slog.String("error", err.Error()))
		}
	}
	s.mu.Unlock()

	s.logger.Info("graph: loaded",
		slog.Int("pages", stats.Pages),
		slog.Int("blocks", stats.Blocks),
		slog.Int("links", stats.Links),
		slog.Int("warnings", stats.Warnings))
	for _, w := range g.Warnings() {
		s.logger.Debug("graph: warning", slog.String("kind", string(w.Kind)), slog.String("path", w.Path), slog.String("message", w.Message))
	}
	return nil
}

// Apply applies a batch of deltas, refreshes backlinks and drops the cached
// ranking. Removing a page that is not in the graph is skipped. The first
// other error stops the batch; deltas applied before it are kept.
func (s *Service) Apply(ctx context.Context, deltas ...graph.Delta) error {
	if len(deltas) == 0 {
		return nil
	}
	var applied []graph.Delta

	s.mu.Lock()
	var err error
	for _, d := range deltas {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = s.g.Apply(d); err != nil {
			if d.Kind == graph.DeltaRemoved && errors.Is(err, apperr.ErrNotFound) {
				s.logger.Debug("graph: remove of unknown page skipped", slog.String("path", d.Path))
				err = nil
				continue
			}
			break
		}
		s.mirror(d)
		applied = append(applied, d)
	}
	s.g.RefreshBacklinks()
	s.rank = nil
	stats := s.g.Stats()
	s.mu.Unlock()

	for _, d := range applied {
		s.logger.Debug("graph: applied", slog.String("op", d.Kind.String()), slog.String("path", d.Path))
		if s.publish != nil {
			s.publish.PublishPageEvent(d.Kind.String(), d.Path, stats)
		}
	}
	if err != nil {
		return fmt.Errorf("graphservice: apply: %w", err)
	}
	return nil
}

// mirror writes one applied delta through to the persister. Mirror failures
// are logged; the in-memory graph stays authoritative.
func (s *Service) mirror(d graph.Delta) {
	if s.persist == nil {
		return
	}
	var err error
	if d.Kind == graph.DeltaRemoved {
		err = s.persist.DeletePage(d.Path)
	} else if p, ok := s.g.Page(d.Path); ok {
		err = s.persist.SavePage(p, s.g.OutEdges(d.Path))
	}
	if err != nil {
		s.logger.Warn("graph: mirror update failed", slog.String("path", d.Path), slog.String("error", err.Error()))
	}
}

// Page returns a page by canonical path.
func (s *Service) Page(path string) (*models.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.g.Page(path)
	if !ok {
		return nil, fmt.Errorf("graphservice: page %s: %w", path, apperr.ErrNotFound)
	}
	return p, nil
}

// PageDetail returns the full view of a page. Hidden pages are reported as
// missing when only public pages are served.
func (s *Service) PageDetail(path string) (*PageDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.g.Page(path)
	if !ok || !s.visible(p) {
		return nil, fmt.Errorf("graphservice: page %s: %w", path, apperr.ErrNotFound)
	}
	var links []string
	for _, n := range s.g.Neighbors(path) {
		if q, ok := s.g.Page(n); ok && s.visible(q) {
			links = append(links, n)
		}
	}
	var backlinks []graph.Backlink
	for _, b := range s.g.Backlinks(path) {
		if q, ok := s.g.Page(b.Source); ok && s.visible(q) {
			backlinks = append(backlinks, b)
		}
	}
	return &PageDetail{
		Page:      export.FromPage(p, links),
		Backlinks: nonNilSlice(backlinks),
		Warnings:  p.Warnings,
	}, nil
}

// Visible reports whether path names a page that listings may show.
func (s *Service) Visible(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.g.Page(path)
	return ok && s.visible(p)
}

func (s *Service) visible(p *models.Page) bool {
	return !s.opts.Parser.PublicOnly || p.Public
}

// Pages lists every page in path order.
func (s *Service) Pages() []PageSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := s.g.Pages()
	out := make([]PageSummary, 0, len(pages))
	for _, p := range pages {
		if !s.visible(p) {
			continue
		}
		out = append(out, PageSummary{
			Path:     p.Path,
			Title:    p.Title,
			Tags:     nonNilSlice(p.Tags),
			Public:   p.Public,
			Blocks:   len(p.Blocks),
			Checksum: p.Checksum,
		})
	}
	return out
}

// Resolve maps a title or alias to its canonical path.
func (s *Service) Resolve(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.g.Page(name); ok {
		return name, nil
	}
	p, ok := s.g.Resolve(name)
	if !ok {
		return "", fmt.Errorf("graphservice: resolve %q: %w", name, apperr.ErrNotFound)
	}
	return p, nil
}

// Backlinks returns the inbound references of a page or sentinel path.
func (s *Service) Backlinks(path string) ([]graph.Backlink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.g.Page(path); !ok && !graph.IsSentinel(path) {
		return nil, fmt.Errorf("graphservice: backlinks %s: %w", path, apperr.ErrNotFound)
	}
	return nonNilSlice(s.g.Backlinks(path)), nil
}

// Traverse collects the pages reachable from start.
func (s *Service) Traverse(start string, mode graph.Mode, maxDepth int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.g.Page(start); !ok {
		return nil, fmt.Errorf("graphservice: traverse %s: %w", start, apperr.ErrNotFound)
	}
	return slices.Collect(s.g.Traverse(start, mode, graph.WithMaxDepth(maxDepth))), nil
}

// ShortestPath returns the shortest path between two pages. A nil path with
// a nil error means the target is unreachable.
func (s *Service) ShortestPath(from, to string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range []string{from, to} {
		if _, ok := s.g.Page(p); !ok {
			return nil, fmt.Errorf("graphservice: shortest path: %s: %w", p, apperr.ErrNotFound)
		}
	}
	path, _ := s.g.ShortestPath(from, to)
	return path, nil
}

// Rank returns the PageRank result, computing it once per graph version.
func (s *Service) Rank() *graph.Ranking {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rank == nil {
		s.rank = s.g.PageRank(s.opts.Rank)
	}
	return s.rank
}

// Cycles runs cycle detection; see graph.CycleOptions.
func (s *Service) Cycles(opts graph.CycleOptions) ([][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if opts.Start != "" {
		if _, ok := s.g.Page(opts.Start); !ok {
			return nil, fmt.Errorf("graphservice: cycles from %s: %w", opts.Start, apperr.ErrNotFound)
		}
	}
	return s.g.DetectCycles(opts)
}

// Orphans returns the pages with no links in either direction.
func (s *Service) Orphans() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nonNilSlice(s.g.Orphans())
}

// Stats returns the current graph statistics.
func (s *Service) Stats() graph.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.Stats()
}

// Warnings returns page warnings and alias collisions.
func (s *Service) Warnings() []models.Warning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nonNilSlice(s.g.Warnings())
}

// Document returns the export form of the graph.
func (s *Service) Document() *export.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return export.FromGraph(s.g, export.Options{PublicOnly: s.opts.Parser.PublicOnly})
}

// Export writes the graph as JSON.
func (s *Service) Export(w io.Writer) error {
	return export.Encode(w, s.Document())
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
