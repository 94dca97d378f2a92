package models

import "fmt"

// WarningKind classifies a recoverable per-page problem.
type WarningKind string

const (
	WarnFrontmatterDecode WarningKind = "frontmatter_decode"
	WarnAliasCollision    WarningKind = "alias_collision"
	WarnDuplicateBlockID  WarningKind = "duplicate_block_id"
	WarnDuplicatePage     WarningKind = "duplicate_page"
	WarnReadFailed        WarningKind = "read_failed"
)

// Warning is a recoverable problem recorded while parsing or building.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Path    string      `json:"path"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.Kind, w.Path, w.Message)
}
