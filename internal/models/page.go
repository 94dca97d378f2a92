// Package models defines the domain types shared by the parser, the graph and
// the query surfaces.
package models

import (
	"iter"
	"strings"
	"time"
)

// Page is one parsed source file. Pages are replaced wholesale on update and
// never mutated after assembly.
type Page struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Aliases     []string       `json:"aliases,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Public      bool           `json:"public"`
	Checksum    string         `json:"checksum,omitempty"`

	// Blocks is the arena of all blocks in document order. Parent and
	// Children on each block are indexes into it.
	Blocks []Block `json:"-"`
	// Roots indexes the top-level blocks.
	Roots []int `json:"-"`

	Warnings []Warning `json:"warnings,omitempty"`
}

// TopLevel returns the roots of the page's block forest.
func (p *Page) TopLevel() []*Block {
	out := make([]*Block, len(p.Roots))
	for i, idx := range p.Roots {
		out[i] = &p.Blocks[idx]
	}
	return out
}

// Children returns the direct children of b in document order.
func (p *Page) Children(b *Block) []*Block {
	out := make([]*Block, len(b.Children))
	for i, idx := range b.Children {
		out[i] = &p.Blocks[idx]
	}
	return out
}

// Parent returns the parent of b, or false for a top-level block.
func (p *Page) Parent(b *Block) (*Block, bool) {
	if b.Parent < 0 || b.Parent >= len(p.Blocks) {
		return nil, false
	}
	return &p.Blocks[b.Parent], true
}

// Block looks up a block by id.
func (p *Page) Block(id string) (*Block, bool) {
	for i := range p.Blocks {
		if p.Blocks[i].ID == id {
			return &p.Blocks[i], true
		}
	}
	return nil, false
}

// Refs yields every outbound reference of every block in document order.
func (p *Page) Refs() iter.Seq[Reference] {
	return func(yield func(Reference) bool) {
		for i := range p.Blocks {
			for _, ref := range p.Blocks[i].Refs {
				if !yield(ref) {
					return
				}
			}
		}
	}
}

// Namespace returns the parent namespace of the page path, or "" for a
// top-level page.
func (p *Page) Namespace() string {
	if i := strings.LastIndex(p.Path, "/"); i >= 0 {
		return p.Path[:i]
	}
	return ""
}

// FileMeta is a lightweight description of a source file returned by
// storage listings.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
