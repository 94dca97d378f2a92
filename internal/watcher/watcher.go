// Package watcher turns file system events under the graph root into page
// deltas.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/pagegraph/internal/parser"
	"github.com/starford/pagegraph/internal/storage"
)

// reconcileDelay debounces rename and new-directory reconciliation.
const reconcileDelay = 200 * time.Millisecond

// Handler receives the changes seen by Watch. Paths are relative to the root.
type Handler interface {
	FileChanged(ctx context.Context, rel string) error
	FileRemoved(ctx context.Context, rel string) error
	Sync(ctx context.Context) (int, error)
}

// Watch starts an fsnotify watcher on the graph root and processes file
// change events until ctx is cancelled.
//
// New directories created at runtime are automatically added to the watch
// list. Renames and new directories trigger a debounced reconciliation pass
// that catches files whose own events were missed.
func Watch(ctx context.Context, root string, h Handler, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if n, err := h.Sync(ctx); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			} else {
				logger.Debug("watcher: reconciled", slog.Int("deltas", n))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if storage.Skip(rel) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", rel))
					}
					// Files may already exist in the new directory.
					scheduleReconcile()
					continue
				}
			}

			if !parser.IsPageFile(rel) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if err := h.FileChanged(ctx, rel); err != nil {
					logger.Warn("watcher: update failed", slog.String("path", rel), slog.String("error", err.Error()))
				}

			case ev.Op&fsnotify.Remove != 0:
				if err := h.FileRemoved(ctx, rel); err != nil {
					logger.Warn("watcher: remove failed", slog.String("path", rel), slog.String("error", err.Error()))
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the old path only. The new path
				// arrives as a separate Create if it stays inside a watched
				// directory; the reconcile pass catches the rest.
				if err := h.FileRemoved(ctx, rel); err != nil {
					logger.Warn("watcher: rename remove failed", slog.String("path", rel), slog.String("error", err.Error()))
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds dir and all its subdirectories to the watcher,
// skipping hidden directories and editor backups.
func addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && storage.Skip(d.Name()) {
			return filepath.SkipDir
		}
		if filepath.Base(filepath.Dir(path)) == "logseq" && d.Name() == "bak" {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
