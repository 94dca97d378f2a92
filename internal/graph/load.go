package graph

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/starford/pagegraph/internal/apperr"
	"github.com/starford/pagegraph/internal/models"
	"github.com/starford/pagegraph/internal/parser"
)

// Source supplies page files relative to a graph root.
type Source interface {
	List(dir string) ([]models.FileMeta, error)
	Read(path string) ([]byte, error)
}

// LoadOptions configures Load.
type LoadOptions struct {
	Parser parser.Options
	// Workers bounds parallel parsing. Zero means GOMAXPROCS.
	Workers int
}

// Load reads and parses every page file in src and builds a graph. Pages are
// parsed in parallel and merged in path order. Listing failures abort with
// apperr.ErrIO; a file that cannot be read becomes an empty page with a
// warning.
func Load(ctx context.Context, src Source, opts LoadOptions) (*Graph, error) {
	metas, err := src.List("")
	if err != nil {
		return nil, fmt.Errorf("graph: list pages: %w: %w", apperr.ErrIO, err)
	}
	files := make([]models.FileMeta, 0, len(metas))
	for _, m := range metas {
		if parser.IsPageFile(m.Path) {
			files = append(files, m)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]*models.Page, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = loadPage(src, f.Path, opts.Parser)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pages := make([]*models.Page, 0, len(results))
	kept := make(map[string]int, len(results))
	for i, p := range results {
		if at, dup := kept[p.Path]; dup {
			pages[at].Warnings = append(pages[at].Warnings, models.Warning{
				Kind:    models.WarnDuplicatePage,
				Path:    p.Path,
				Message: fmt.Sprintf("%s maps to the same page as an earlier file and was skipped", files[i].Path),
			})
			continue
		}
		kept[p.Path] = len(pages)
		pages = append(pages, p)
	}
	return Build(pages, opts.Parser), nil
}

func loadPage(src Source, file string, opts parser.Options) *models.Page {
	path := parser.PagePath(file)
	data, err := src.Read(file)
	if err != nil {
		return &models.Page{
			Path:   path,
			Title:  parser.TitleFromPath(path),
			Public: !opts.PublicOnly,
			Warnings: []models.Warning{{
				Kind:    models.WarnReadFailed,
				Path:    path,
				Message: err.Error(),
			}},
		}
	}
	return parser.ParsePage(path, data, opts)
}
