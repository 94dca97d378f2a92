// Package parser turns page text into a block tree with inline references and
// assembles pages from it.
package parser

import (
	"iter"
	"regexp"
	"strings"
)

// DefaultTabWidth is the indentation width of a tab when none is configured.
const DefaultTabWidth = 4

// LineKind classifies a source line.
type LineKind int

const (
	LineBlank LineKind = iota
	LineFrontmatterOpen
	LineFrontmatter
	LineFrontmatterClose
	LineBullet
	LineFence
	LineCode
	LineProperty
	LineText
)

var lineKindNames = [...]string{
	LineBlank:            "blank",
	LineFrontmatterOpen:  "frontmatter-open",
	LineFrontmatter:      "frontmatter",
	LineFrontmatterClose: "frontmatter-close",
	LineBullet:           "bullet",
	LineFence:            "fence",
	LineCode:             "code",
	LineProperty:         "property",
	LineText:             "text",
}

func (k LineKind) String() string {
	if int(k) < len(lineKindNames) {
		return lineKindNames[k]
	}
	return "unknown"
}

// FenceEdge marks a line that opens or closes a code fence.
type FenceEdge int

const (
	FenceNone FenceEdge = iota
	FenceOpen
	FenceClose
)

// Line is one classified source line.
type Line struct {
	Kind LineKind
	// Number is the zero-based line number in the source text.
	Number int
	Raw    string
	// Indent is the width of the leading whitespace with tabs expanded.
	Indent int
	// Text is the line with indentation removed and, for bullets, the
	// bullet marker removed.
	Text string

	Fence FenceEdge
	Lang  string

	// Key and Value are set for property lines and for bullets whose body
	// is a single property.
	Key   string
	Value string
}

var propertyRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_.-]*)::(?:[ \t]+(.*))?$`)

// Lines classifies text line by line. The returned sequence is lazy and can be
// ranged over any number of times.
func Lines(text string, tabWidth int) iter.Seq[Line] {
	if tabWidth <= 0 {
		tabWidth = DefaultTabWidth
	}
	return func(yield func(Line) bool) {
		lines := splitLines(text)
		start := 0

		if len(lines) > 0 && isDelimiter(lines[0]) {
			if !yield(Line{Kind: LineFrontmatterOpen, Number: 0, Raw: lines[0]}) {
				return
			}
			end := -1
			for i := 1; i < len(lines); i++ {
				if isDelimiter(lines[i]) {
					end = i
					break
				}
			}
			last := end
			if end < 0 {
				last = len(lines)
			}
			for i := 1; i < last; i++ {
				if !yield(Line{Kind: LineFrontmatter, Number: i, Raw: lines[i], Text: lines[i]}) {
					return
				}
			}
			if end < 0 {
				return
			}
			if !yield(Line{Kind: LineFrontmatterClose, Number: end, Raw: lines[end]}) {
				return
			}
			start = end + 1
		}

		var fence fenceState
		for i := start; i < len(lines); i++ {
			if !yield(classify(lines[i], i, tabWidth, &fence)) {
				return
			}
		}
	}
}

func classify(raw string, number, tabWidth int, fence *fenceState) Line {
	indent, rest := measureIndent(raw, tabWidth)
	ln := Line{Number: number, Raw: raw, Indent: indent}
	rest = strings.TrimRight(rest, " \t")

	if fence.open {
		if fence.closedBy(rest) {
			fence.open = false
			ln.Kind, ln.Fence, ln.Text = LineFence, FenceClose, rest
		} else {
			ln.Kind, ln.Text = LineCode, raw
		}
		return ln
	}

	if rest == "" {
		ln.Kind = LineBlank
		return ln
	}

	if body, ok := bulletBody(rest); ok {
		ln.Kind, ln.Text = LineBullet, body
		if lang, ok := fence.tryOpen(body); ok {
			ln.Fence, ln.Lang = FenceOpen, lang
		} else if m := propertyRe.FindStringSubmatch(body); m != nil {
			ln.Key, ln.Value = m[1], strings.TrimSpace(m[2])
		}
		return ln
	}

	if lang, ok := fence.tryOpen(rest); ok {
		ln.Kind, ln.Fence, ln.Lang, ln.Text = LineFence, FenceOpen, lang, rest
		return ln
	}
	if m := propertyRe.FindStringSubmatch(rest); m != nil {
		ln.Kind, ln.Text = LineProperty, rest
		ln.Key, ln.Value = m[1], strings.TrimSpace(m[2])
		return ln
	}
	ln.Kind, ln.Text = LineText, rest
	return ln
}

// splitLines normalises line terminators and splits text into lines. A
// trailing terminator does not produce an empty final line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimPrefix(text, "\ufeff")
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func isDelimiter(line string) bool {
	return strings.TrimRight(line, " \t") == "---"
}

// measureIndent returns the width of the leading whitespace and the remainder.
func measureIndent(line string, tabWidth int) (int, string) {
	width := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case ' ':
			width++
		case '\t':
			width += tabWidth
		default:
			return width, line[i:]
		}
	}
	return width, ""
}

// bulletBody reports whether s starts a block and returns the text after the
// bullet marker.
func bulletBody(s string) (string, bool) {
	if s[0] != '-' && s[0] != '*' {
		return "", false
	}
	if len(s) == 1 {
		return "", true
	}
	if s[1] != ' ' && s[1] != '\t' {
		return "", false
	}
	return strings.TrimLeft(s[2:], " \t"), true
}

type fenceState struct {
	open   bool
	marker byte
	length int
}

// tryOpen opens a fence if s starts with three or more backticks or tildes.
func (f *fenceState) tryOpen(s string) (string, bool) {
	if len(s) < 3 || (s[0] != '`' && s[0] != '~') {
		return "", false
	}
	marker := s[0]
	n := 0
	for n < len(s) && s[n] == marker {
		n++
	}
	if n < 3 {
		return "", false
	}
	info := strings.TrimSpace(s[n:])
	if marker == '`' && strings.ContainsRune(info, '`') {
		return "", false
	}
	f.open, f.marker, f.length = true, marker, n
	lang, _, _ := strings.Cut(info, " ")
	return lang, true
}

func (f *fenceState) closedBy(s string) bool {
	if len(s) < f.length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] != f.marker {
			return false
		}
	}
	return true
}
