package index

import (
	"github.com/starford/pagegraph/internal/graph"
	"github.com/starford/pagegraph/internal/models"
)

// Mirror defines the persisted view of the page graph.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type Mirror interface {
	SavePage(p *models.Page, edges []graph.Edge) error
	DeletePage(path string) error
	ReplaceAll(g *graph.Graph) error
	GetPage(path string) (*PageRow, error)
	AllChecksums() (map[string]string, error)
	Backlinks(target string) ([]LinkRow, error)
	Counts() (Counts, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies Mirror at compile time.
var _ Mirror = (*DB)(nil)
