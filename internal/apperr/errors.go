// Package apperr defines the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrIO                = errors.New("io error")
	ErrInvalidPath       = errors.New("invalid path")
	ErrFrontmatterDecode = errors.New("frontmatter decode error")
	ErrCycleDetected     = errors.New("cycle detected")
)
