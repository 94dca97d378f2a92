package graphservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/pagegraph/internal/apperr"
	"github.com/starford/pagegraph/internal/graph"
	"github.com/starford/pagegraph/internal/parser"
	"github.com/starford/pagegraph/internal/storage"
)

// Sync walks the graph root and brings the graph up to date:
//   - new files become Added deltas
//   - files whose checksum changed become Modified deltas
//   - pages whose file is gone become Removed deltas
//
// It returns the number of deltas applied.
func (s *Service) Sync(ctx context.Context) (int, error) {
	metas, err := s.store.List("")
	if err != nil {
		return 0, err
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })

	known := s.checksums()
	onDisk := make(map[string]struct{}, len(metas))
	var deltas []graph.Delta
	for _, m := range metas {
		path := parser.PagePath(m.Path)
		if _, dup := onDisk[path]; dup {
			continue
		}
		onDisk[path] = struct{}{}

		cs, exists := known[path]
		if exists && cs == m.Checksum {
			continue
		}
		data, err := s.store.Read(m.Path)
		if err != nil {
			s.logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if exists {
			deltas = append(deltas, graph.Modified(path, data))
		} else {
			deltas = append(deltas, graph.Added(path, data))
		}
	}

	// Remove stale pages.
	var stale []string
	for path := range known {
		if _, ok := onDisk[path]; !ok {
			stale = append(stale, path)
		}
	}
	sort.Strings(stale)
	for _, path := range stale {
		deltas = append(deltas, graph.Removed(path))
	}

	if err := s.Apply(ctx, deltas...); err != nil {
		return 0, err
	}
	if len(deltas) > 0 {
		s.logger.Info("sync: reconciled", slog.Int("deltas", len(deltas)))
	}
	return len(deltas), nil
}

// checksums snapshots page path → checksum.
func (s *Service) checksums() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, s.g.Len())
	for _, p := range s.g.Pages() {
		out[p.Path] = p.Checksum
	}
	return out
}

// FileChanged re-reads one file relative to the root and applies it as an
// Added or Modified delta. Unchanged content and non-page files are ignored.
func (s *Service) FileChanged(ctx context.Context, rel string) error {
	if !parser.IsPageFile(rel) || storage.Skip(rel) {
		return nil
	}
	meta, err := s.store.Stat(rel)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return s.FileRemoved(ctx, rel)
		}
		return err
	}
	path := parser.PagePath(rel)
	current, exists := s.checksums()[path]
	if exists && current == meta.Checksum {
		return nil
	}
	data, err := s.store.Read(rel)
	if err != nil {
		return fmt.Errorf("graphservice: read %s: %w", rel, err)
	}
	if exists {
		return s.Apply(ctx, graph.Modified(path, data))
	}
	return s.Apply(ctx, graph.Added(path, data))
}

// FileRemoved drops the page backed by rel.
func (s *Service) FileRemoved(ctx context.Context, rel string) error {
	if !parser.IsPageFile(rel) || storage.Skip(rel) {
		return nil
	}
	return s.Apply(ctx, graph.Removed(parser.PagePath(rel)))
}
