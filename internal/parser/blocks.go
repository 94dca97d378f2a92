package parser

import (
	"fmt"
	"iter"
	"strconv"

	"github.com/google/uuid"

	"github.com/starford/pagegraph/internal/models"
)

// document is the raw result of consuming one page's classified lines.
type document struct {
	frontmatter []string
	hasFM       bool
	unclosedFM  bool

	blocks   []models.Block
	roots    []int
	warnings []models.Warning
}

// stackEntry pairs an indentation width with the arena index of the block
// that opened it.
type stackEntry struct {
	indent int
	block  int
}

type blockParser struct {
	path  string
	doc   document
	stack []stackEntry
	// current is the block receiving continuation lines, -1 before the first.
	current int
	// column is where the current block's content starts; continuation code
	// lines are stripped up to it.
	column   int
	tabWidth int
	fmClosed bool
}

// parseBlocks consumes classified lines into a block arena.
func parseBlocks(path string, lines iter.Seq[Line], tabWidth int) document {
	p := &blockParser{path: path, current: -1, tabWidth: tabWidth}

	for ln := range lines {
		switch ln.Kind {
		case LineFrontmatterOpen:
			p.doc.hasFM = true
		case LineFrontmatter:
			p.doc.frontmatter = append(p.doc.frontmatter, ln.Raw)
		case LineFrontmatterClose:
			p.fmClosed = true
		case LineBlank:
		case LineBullet:
			p.startBullet(ln)
		case LineProperty:
			if p.current < 0 {
				p.startPreBlock(ln, "")
			}
			p.block().Properties.Set(ln.Key, ln.Value)
		case LineText:
			p.appendText(ln, ln.Text)
		case LineFence, LineCode:
			p.appendText(ln, p.stripColumn(ln.Raw))
			if ln.Fence == FenceOpen {
				p.addLanguage(ln.Lang)
			}
		}
	}
	p.doc.unclosedFM = p.doc.hasFM && !p.fmClosed

	p.finish()
	return p.doc
}

func (p *blockParser) block() *models.Block {
	return &p.doc.blocks[p.current]
}

// startBullet places a new block using the indentation stack. A deeper
// indent nests under the top of the stack; otherwise entries deeper than the
// new indent are popped and the block becomes a sibling of the entry left on
// top, taking over its indent.
func (p *blockParser) startBullet(ln Line) {
	idx := len(p.doc.blocks)
	b := models.Block{Line: ln.Number, Parent: -1}

	n := len(p.stack)
	switch {
	case n > 0 && ln.Indent > p.stack[n-1].indent:
		parent := p.stack[n-1].block
		b.Parent = parent
		b.Depth = p.doc.blocks[parent].Depth + 1
		p.stack = append(p.stack, stackEntry{indent: ln.Indent, block: idx})
	default:
		for len(p.stack) > 0 && p.stack[len(p.stack)-1].indent > ln.Indent {
			p.stack = p.stack[:len(p.stack)-1]
		}
		if len(p.stack) == 0 {
			p.stack = append(p.stack, stackEntry{indent: ln.Indent, block: idx})
		} else {
			top := &p.stack[len(p.stack)-1]
			sibling := p.doc.blocks[top.block]
			b.Parent, b.Depth = sibling.Parent, sibling.Depth
			top.block = idx
		}
	}

	switch {
	case ln.Fence == FenceOpen:
		b.Content = ln.Text
		if ln.Lang != "" {
			b.Languages = []string{ln.Lang}
		}
	case ln.Key != "":
		b.Properties.Set(ln.Key, ln.Value)
	default:
		b.Content = ln.Text
	}

	p.attach(idx, b)
	p.column = ln.Indent + 2
}

// startPreBlock opens a top-level block for content that precedes the first
// bullet. It is not pushed on the indentation stack.
func (p *blockParser) startPreBlock(ln Line, content string) {
	idx := len(p.doc.blocks)
	p.attach(idx, models.Block{Line: ln.Number, Parent: -1, Content: content})
	p.column = ln.Indent
}

func (p *blockParser) attach(idx int, b models.Block) {
	p.doc.blocks = append(p.doc.blocks, b)
	if b.Parent < 0 {
		p.doc.roots = append(p.doc.roots, idx)
	} else {
		parent := &p.doc.blocks[b.Parent]
		parent.Children = append(parent.Children, idx)
	}
	p.current = idx
}

func (p *blockParser) appendText(ln Line, text string) {
	if p.current < 0 {
		p.startPreBlock(ln, text)
		return
	}
	b := p.block()
	if b.Content == "" {
		b.Content = text
		return
	}
	b.Content += "\n" + text
}

func (p *blockParser) addLanguage(lang string) {
	if lang == "" {
		return
	}
	b := p.block()
	b.Languages = append(b.Languages, lang)
}

// stripColumn removes leading whitespace up to the current content column so
// relative indentation inside code survives.
func (p *blockParser) stripColumn(raw string) string {
	width := 0
	i := 0
	for i < len(raw) && width < p.column {
		switch raw[i] {
		case ' ':
			width++
		case '\t':
			width += p.tabWidth
		default:
			return raw[i:]
		}
		i++
	}
	return raw[i:]
}

// finish assigns ids, task markers and references once all lines are in.
func (p *blockParser) finish() {
	seen := make(map[string]int, len(p.doc.blocks))
	for i := range p.doc.blocks {
		b := &p.doc.blocks[i]
		id, ok := b.Properties.Get("id")
		if ok && id != "" {
			if first, dup := seen[id]; dup {
				p.doc.warnings = append(p.doc.warnings, models.Warning{
					Kind:    models.WarnDuplicateBlockID,
					Path:    p.path,
					Message: fmt.Sprintf("block id %q on line %d already used on line %d", id, b.Line+1, p.doc.blocks[first].Line+1),
				})
				id = ""
			}
		}
		if id == "" {
			id = BlockID(p.path, b.Line)
		}
		seen[id] = i
		b.ID = id

		b.Marker, b.Task, b.Priority = taskMarker(b.Content)
		b.Refs = ExtractRefs(b.Content, b.ID)
	}
}

// BlockID returns the generated id of the block starting on line of the page
// at path. Ids have the shape of a UUID so they can be targeted by block refs.
func BlockID(path string, line int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(path+":"+strconv.Itoa(line))).String()
}
