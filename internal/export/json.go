// Package export writes a graph in a stable JSON interchange format and reads
// it back.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/starford/pagegraph/internal/graph"
	"github.com/starford/pagegraph/internal/models"
)

// Version identifies the document layout.
const Version = 1

// Document is the serialized form of a graph.
type Document struct {
	Version    int                   `json:"version"`
	Pages      []Page                `json:"pages"`
	Links      []Link                `json:"links"`
	Blocks     []BlockEntry          `json:"blocks"`
	Unresolved []graph.UnresolvedRef `json:"unresolved_refs,omitempty"`
	Warnings   []models.Warning      `json:"warnings,omitempty"`
	Counts     graph.Stats           `json:"stats"`
}

// Page is one page with its nested block tree.
type Page struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Aliases     []string       `json:"aliases"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter"`
	Public      bool           `json:"public"`
	Checksum    string         `json:"checksum,omitempty"`
	Blocks      []Block        `json:"blocks"`
	// Links holds the distinct existing pages this page links to.
	Links []string `json:"links"`
}

// Block is a nested block node.
type Block struct {
	ID         string             `json:"id"`
	Content    string             `json:"content"`
	Depth      int                `json:"depth"`
	Properties models.Properties  `json:"properties"`
	Task       models.TaskState   `json:"task,omitempty"`
	Priority   string             `json:"priority,omitempty"`
	Refs       []models.Reference `json:"refs"`
	Children   []Block            `json:"children"`
}

// Link is one edge of the page graph.
type Link struct {
	Source   string         `json:"source"`
	Target   string         `json:"target"`
	Kind     models.RefKind `json:"kind"`
	Block    string         `json:"block"`
	Dangling bool           `json:"dangling,omitempty"`
}

// BlockEntry is the flat index entry of a block.
type BlockEntry struct {
	ID     string `json:"id"`
	Page   string `json:"page"`
	Parent string `json:"parent,omitempty"`
	Depth  int    `json:"depth"`
}

// Options filters what is exported.
type Options struct {
	// PublicOnly leaves out pages that are not public. Links into a left out
	// page are written as dangling.
	PublicOnly bool
}

// FromGraph converts g into a Document. Pages, blocks and links are in path
// and document order.
func FromGraph(g *graph.Graph, opts Options) *Document {
	doc := &Document{
		Version: Version,
		Pages:   []Page{},
		Links:   []Link{},
		Blocks:  []BlockEntry{},
	}

	included := func(path string) bool {
		p, ok := g.Page(path)
		return ok && (!opts.PublicOnly || p.Public)
	}

	for _, p := range g.Pages() {
		if !included(p.Path) {
			continue
		}
		var links []string
		for _, n := range g.Neighbors(p.Path) {
			if included(n) {
				links = append(links, n)
			}
		}
		doc.Pages = append(doc.Pages, FromPage(p, links))

		for i := range p.Blocks {
			b := &p.Blocks[i]
			entry := BlockEntry{ID: b.ID, Page: p.Path, Depth: b.Depth}
			if parent, ok := p.Parent(b); ok {
				entry.Parent = parent.ID
			}
			doc.Blocks = append(doc.Blocks, entry)
		}

		for _, e := range g.OutEdges(p.Path) {
			link := Link{Source: e.Source, Target: e.Target, Kind: e.Ref.Kind, Block: e.Ref.Source}
			if !graph.IsSentinel(e.Target) && !included(e.Target) {
				link.Target = graph.Sentinel(e.Ref.Target)
			}
			link.Dangling = graph.IsSentinel(link.Target)
			doc.Links = append(doc.Links, link)
		}
		doc.Warnings = append(doc.Warnings, p.Warnings...)
	}
	for _, u := range g.UnresolvedRefs() {
		if included(u.Page) {
			doc.Unresolved = append(doc.Unresolved, u)
		}
	}

	doc.Counts = g.Stats()
	doc.Counts.Pages, doc.Counts.Blocks, doc.Counts.Links = doc.count()
	return doc
}

// FromPage converts one page with its nested block tree. links lists the
// pages it links to.
func FromPage(p *models.Page, links []string) Page {
	page := Page{
		Path:        p.Path,
		Title:       p.Title,
		Aliases:     orEmpty(p.Aliases),
		Tags:        orEmpty(p.Tags),
		Frontmatter: p.Frontmatter,
		Public:      p.Public,
		Checksum:    p.Checksum,
		Blocks:      nestBlocks(p, p.Roots),
		Links:       orEmpty(links),
	}
	if page.Frontmatter == nil {
		page.Frontmatter = map[string]any{}
	}
	return page
}

func nestBlocks(p *models.Page, idx []int) []Block {
	out := make([]Block, 0, len(idx))
	for _, i := range idx {
		b := &p.Blocks[i]
		out = append(out, Block{
			ID:         b.ID,
			Content:    b.Content,
			Depth:      b.Depth,
			Properties: b.Properties,
			Task:       b.Task,
			Priority:   b.Priority,
			Refs:       orEmpty(b.Refs),
			Children:   nestBlocks(p, b.Children),
		})
	}
	return out
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Write encodes g as indented JSON.
func Write(w io.Writer, g *graph.Graph, opts Options) error {
	return Encode(w, FromGraph(g, opts))
}

// Encode writes any query result as indented JSON followed by a newline.
func Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	return nil
}

// Decode reads a document written by Write.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("export: decode: %w", err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("export: unsupported document version %d", doc.Version)
	}
	return &doc, nil
}

// Stats recomputes the page, block and link counts from the document body.
// The remaining fields are copied from the stored stats.
func (d *Document) Stats() graph.Stats {
	s := d.Counts
	s.Pages, s.Blocks, s.Links = d.count()
	return s
}

func (d *Document) count() (pages, blocks, links int) {
	var walk func([]Block)
	walk = func(bs []Block) {
		for _, b := range bs {
			blocks++
			walk(b.Children)
		}
	}
	for _, p := range d.Pages {
		walk(p.Blocks)
	}
	return len(d.Pages), blocks, len(d.Links)
}
