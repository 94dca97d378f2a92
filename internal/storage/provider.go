// Package storage reads a page graph from the file system.
package storage

import "github.com/starford/pagegraph/internal/models"

// Provider is the interface for graph file operations. Paths are relative to
// the graph root and use forward slashes.
type Provider interface {
	// List returns metadata for every page file under dir.
	List(dir string) ([]models.FileMeta, error)
	// Stat returns metadata for a single file.
	Stat(path string) (models.FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
}
